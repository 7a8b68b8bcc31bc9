package results

import (
	"context"
	"strconv"
	"strings"

	"coderace/internal/services/race"

	"github.com/redis/go-redis/v9"
)

const (
	Stream       = "race_results"
	streamMaxLen = 10000
)

// StreamSink appends every finished race to a Redis stream.
type StreamSink struct {
	rdc *redis.Client
}

var _ race.ResultSink = (*StreamSink)(nil)

func NewStreamSink(rdc *redis.Client) *StreamSink { return &StreamSink{rdc: rdc} }

func (s *StreamSink) PublishResult(ctx context.Context, res race.RaceResult) error {
	return s.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: encode(res),
	}).Err()
}

// encode flattens res into stream field/value pairs in a fixed order.
func encode(res race.RaceResult) []any {
	var started int64
	if !res.StartedAt.IsZero() {
		started = res.StartedAt.Unix()
	}
	return []any{
		"id", res.ID,
		"room", res.RoomID,
		"question", res.QuestionID,
		"players", strings.Join(res.Players, ","),
		"winner", res.Winner,
		"outcome", string(res.Outcome),
		"started", strconv.FormatInt(started, 10),
		"finished", strconv.FormatInt(res.FinishedAt.Unix(), 10),
	}
}
