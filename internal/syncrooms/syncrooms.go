package syncrooms

import (
	"context"
	"strconv"
	"strings"
	"time"

	"coderace/internal/services/race"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ActiveSet   = "rooms:active"
	HashPrefix  = "room:"
	pipeTimeout = 1500 * time.Millisecond
)

// RoomLister is the slice of the race service the mirror reads.
type RoomLister interface {
	ListRooms() []race.RoomSnapshot
}

// Run mirrors the live rooms into Redis every interval so dashboards and
// other processes can read them without touching this server.
func Run(ctx context.Context, rdc *redis.Client, rooms RoomLister, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if err := SyncOnce(ctx, rdc, rooms.ListRooms(), 2*interval); err != nil {
					zap.L().Warn("syncrooms.pipeline", zap.Error(err))
				}
			}
		}
	}()
}

// SyncOnce replaces the active set and writes one hash per room in a single
// MULTI/EXEC round-trip. Hashes expire after ttl unless refreshed.
func SyncOnce(ctx context.Context, rdc *redis.Client, rooms []race.RoomSnapshot, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, pipeTimeout)
	defer cancel()

	pipe := rdc.TxPipeline()
	pipe.Del(ctx, ActiveSet)
	for _, r := range rooms {
		key := HashPrefix + r.ID
		pipe.HSet(ctx, key, Fields(r)...)
		pipe.Expire(ctx, key, ttl)
		pipe.SAdd(ctx, ActiveSet, r.ID)
	}
	if len(rooms) > 0 {
		pipe.Expire(ctx, ActiveSet, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Fields is the hash layout of one room: status, players, question,
// remaining seconds, winner and creation time.
func Fields(r race.RoomSnapshot) []any {
	return []any{
		"st", string(r.Status),
		"pl", strings.Join(r.Players, ","),
		"q", r.QuestionID,
		"rem", strconv.Itoa(r.Remaining),
		"win", r.Winner,
		"ca", strconv.FormatInt(r.CreatedAt.Unix(), 10),
	}
}
