package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"livepoll-server/domain"
)

// scheduler holds at most one running poll and its expiry timer. The
// generation counter invalidates timers that fire after being superseded.
type scheduler struct {
	poll       *domain.Poll
	timer      *time.Timer
	generation uint64
}

func (s *scheduler) running() bool {
	return s.poll != nil
}

// start supersedes any running poll and arms a timer for poll's deadline.
// A poll that did not start after the running one is refused, so a late
// start request cannot displace a newer poll. fire runs on the timer goroutine.
func (s *scheduler) start(poll *domain.Poll, now time.Time, fire func(generation uint64)) bool {
	if s.poll != nil && !poll.StartedAt.After(s.poll.StartedAt) {
		return false
	}
	s.stop()
	s.generation++
	gen := s.generation
	s.poll = poll
	s.timer = time.AfterFunc(poll.Deadline().Sub(now), func() { fire(gen) })
	return true
}

// expire transitions to idle if generation still names the running poll.
func (s *scheduler) expire(generation uint64) (*domain.Poll, bool) {
	if s.poll == nil || generation != s.generation {
		return nil, false
	}
	return s.clear(), true
}

// end transitions to idle if pollID is the running poll. An empty pollID
// ends whatever is running.
func (s *scheduler) end(pollID string) (*domain.Poll, bool) {
	if s.poll == nil || (pollID != "" && pollID != s.poll.ID) {
		return nil, false
	}
	return s.clear(), true
}

func (s *scheduler) clear() *domain.Poll {
	s.stop()
	poll := s.poll
	s.poll = nil
	s.generation++
	return poll
}

func (s *scheduler) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// StartPoll makes poll the running poll, cancelling the previous timer,
// and announces it to every connection.
func (h *Hub) StartPoll(poll *domain.Poll) {
	if poll == nil || poll.ID == "" {
		return
	}
	h.do(func() {
		if !h.arm(poll) {
			slog.Warn("ignoring stale poll start", "pollId", poll.ID, "runningPollId", h.scheduler.poll.ID)
			return
		}
		slog.Info("poll started", "pollId", poll.ID, "timeLimit", poll.TimeLimit)
		h.emitAll(domain.EventNewPoll, domain.PollSnapshot{
			Poll:          *poll,
			TimeRemaining: poll.TimeRemaining(h.now()),
		})
	})
}

// EndPoll ends pollID now if it is the running poll. It reports whether a
// running poll was ended.
func (h *Hub) EndPoll(pollID string) bool {
	var ended bool
	h.do(func() {
		poll, ok := h.scheduler.end(pollID)
		if ok {
			h.finishPoll(poll, "ended")
		}
		ended = ok
	})
	return ended
}

// Resume adopts the poll the store still marks active. A poll whose
// deadline has already passed expires immediately.
func (h *Hub) Resume(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	poll, err := h.store.ActivePoll(ctx)
	if err != nil {
		return fmt.Errorf("load active poll: %w", err)
	}
	if poll == nil {
		return nil
	}
	h.do(func() {
		if h.scheduler.running() {
			return
		}
		if h.arm(poll) {
			slog.Info("poll resumed", "pollId", poll.ID, "deadline", poll.Deadline())
		}
	})
	return nil
}

func (h *Hub) arm(poll *domain.Poll) bool {
	return h.scheduler.start(poll, h.now(), func(generation uint64) {
		h.post(func() { h.expire(generation) })
	})
}

func (h *Hub) expire(generation uint64) {
	poll, ok := h.scheduler.expire(generation)
	if !ok {
		return
	}
	h.finishPoll(poll, "expired")
}

func (h *Hub) finishPoll(poll *domain.Poll, reason string) {
	slog.Info("poll ended", "pollId", poll.ID, "reason", reason)
	h.emitAll(domain.EventPollEnded, domain.PollEnded{PollID: poll.ID})
	if h.store != nil {
		go h.persistEnd(poll.ID)
	}
}

// persistEnd runs off the loop; a failure is logged and not retried.
func (h *Hub) persistEnd(pollID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	results, err := h.store.EndPoll(ctx, pollID)
	if err != nil {
		slog.Error("end poll failed", "pollId", pollID, "error", err)
		return
	}
	h.post(func() {
		h.emitAll(domain.EventPollResultsUpdated, results)
	})
}
