package results

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxEntryAttempts is how often Postgres may reject the same stream entry
// before the syncer gives up on it and moves past.
const maxEntryAttempts = 3

// Run tails the result stream and persists every race into Postgres.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	s := newSyncer(db)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{Stream, s.lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("results.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			if err := s.handle(ctx, res[0].Messages); err != nil {
				zap.L().Error("results.persist", zap.Error(err))
				time.Sleep(time.Second)
			}
		}
	}()
}

type syncer struct {
	db     *sql.DB
	lastID string

	failedID string
	failures int
	skip     map[string]bool
}

func newSyncer(db *sql.DB) *syncer {
	return &syncer{db: db, lastID: "0-0", skip: make(map[string]bool)}
}

// handle persists one batch and advances lastID past it on success. An entry
// Postgres keeps rejecting is dropped after maxEntryAttempts; connection
// failures are retried without limit.
func (s *syncer) handle(ctx context.Context, msgs []redis.XMessage) error {
	batch := make([]redis.XMessage, 0, len(msgs))
	for _, m := range msgs {
		if !s.skip[m.ID] {
			batch = append(batch, m)
		}
	}

	err := persist(ctx, s.db, batch)
	if err == nil {
		s.lastID = msgs[len(msgs)-1].ID
		s.failedID, s.failures = "", 0
		clear(s.skip)
		return nil
	}

	var ee *entryError
	var pgErr *pgconn.PgError
	if !errors.As(err, &ee) || !errors.As(err, &pgErr) {
		return err
	}
	if ee.id != s.failedID {
		s.failedID, s.failures = ee.id, 0
	}
	s.failures++
	if s.failures >= maxEntryAttempts {
		zap.L().Error("results.entry_skipped",
			zap.String("entry_id", ee.id),
			zap.Int("attempts", s.failures),
			zap.Error(err),
		)
		s.skip[ee.id] = true
		s.failedID, s.failures = "", 0
	}
	return err
}

type entryError struct {
	id  string
	err error
}

func (e *entryError) Error() string { return "entry " + e.id + ": " + e.err.Error() }
func (e *entryError) Unwrap() error { return e.err }

const insertRace = `
	INSERT INTO races (id, room_id, question_id, players, winner, outcome, started_at, finished_at)
	     VALUES ($1, $2, $3, string_to_array($4, ','), NULLIF($5, ''), $6,
	             to_timestamp(NULLIF($7, 0)), to_timestamp($8))
	ON CONFLICT (id) DO NOTHING`

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		v := m.Values
		started, _ := strconv.ParseInt(str(v, "started"), 10, 64)
		finished, _ := strconv.ParseInt(str(v, "finished"), 10, 64)
		if _, err := tx.ExecContext(ctx, insertRace,
			str(v, "id"), str(v, "room"), str(v, "question"), str(v, "players"),
			str(v, "winner"), str(v, "outcome"), started, finished,
		); err != nil {
			_ = tx.Rollback()
			return &entryError{id: m.ID, err: err}
		}
	}
	return tx.Commit()
}

func str(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}
