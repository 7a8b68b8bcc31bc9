package race

import (
	"go.uber.org/zap"
)

// sleep waits one time unit and reports false when the service is stopping.
func (s *raceService) sleep() bool {
	select {
	case <-s.clock.After(s.unit):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// runCountdown broadcasts 5..1 one unit apart, then starts the race. It has
// no cancel handle: it only stops early when the room has been deleted.
func (s *raceService) runCountdown(r *room) {
	defer s.wg.Done()

	for n := CountdownFrom; n > 0; n-- {
		alive := r.tick(func() bool {
			r.broadcast(CountdownMessage{Type: TypeCountdown, Countdown: n})
			return true
		})
		if !alive {
			zap.L().Debug("race.countdown_abandoned", zap.String("room_id", r.id), zap.Int("at", n))
			return
		}
		if !s.sleep() {
			return
		}
	}

	r.tick(func() bool {
		if !r.setStatus(StatusActive) {
			return false
		}
		r.startedAt = s.clock.Now()
		r.remaining = s.totalTime
		r.broadcast(RaceStartedMessage{Type: TypeRaceStarted, Question: r.question, Time: s.totalTime})
		zap.L().Info("race.started", zap.String("room_id", r.id), zap.Int("time", s.totalTime))

		if s.track() {
			go s.runRaceClock(r)
		}
		return true
	})
}

// runRaceClock counts the race down. Each tick first checks that the room is
// still registered and active; a win or a deleted room ends it silently.
func (s *raceService) runRaceClock(r *room) {
	defer s.wg.Done()

	for remaining := s.totalTime; remaining > 0; {
		if !s.sleep() {
			return
		}
		remaining--

		keepGoing := r.tick(func() bool {
			if r.status != StatusActive {
				return false
			}
			r.remaining = remaining
			if remaining > 0 {
				return true
			}
			if r.setStatus(StatusCompleted) {
				r.broadcast(GameOverMessage{Type: TypeGameOver, Message: timeoutMessage})
				zap.L().Info("race.timed_out", zap.String("room_id", r.id))
				s.publish(r, OutcomeTimeout)
			}
			return false
		})
		if !keepGoing {
			return
		}
	}
}
