package race

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Broadcast encodes msg once and hands it to every target. A failing target
// is logged and skipped; the rest still receive the frame.
func Broadcast(msg any, targets ...Sender) int {
	data, err := json.Marshal(msg)
	if err != nil {
		zap.L().Error("race.broadcast_marshal", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, t := range targets {
		if t == nil {
			continue
		}
		if err := t.Send(data); err != nil {
			zap.L().Warn("race.broadcast_send", zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
