package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	q "github.com/iliyamo/bus-seat-checkout/internal/queue"
	"github.com/iliyamo/bus-seat-checkout/internal/repository"
)

// ExpiryIndex hands out sessions whose holds have expired.  Each session
// is returned by at most one call across all instances.
type ExpiryIndex interface {
	ClaimExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

// Releaser frees a reservation on the backend.
type Releaser interface {
	Release(ctx context.Context, reservationID string) error
}

// Publisher receives operational events.
type Publisher interface {
	Publish(ctx context.Context, event q.LifecycleEvent) error
}

// HoldSweeper releases holds whose customers never came back from the
// gateway.  Without it those seats stay locked until the backend's own
// expiry kicks in.
type HoldSweeper struct {
	Index     ExpiryIndex
	Store     repository.HoldStore
	Lifecycle Releaser
	Publisher Publisher // optional
	Log       *logrus.Logger
	Batch     int64
	Now       func() time.Time
}

// NewHoldSweeper returns a sweeper claiming up to 100 sessions per pass.
func NewHoldSweeper(index ExpiryIndex, store repository.HoldStore, lc Releaser, pub Publisher, log *logrus.Logger) *HoldSweeper {
	return &HoldSweeper{Index: index, Store: store, Lifecycle: lc, Publisher: pub, Log: log, Batch: 100, Now: time.Now}
}

// Sweep runs one pass and returns how many holds it released.
func (s *HoldSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.Now()
	ids, err := s.Index.ClaimExpired(ctx, now, s.Batch)
	released := 0
	for _, id := range ids {
		if s.sweepSession(ctx, id, now) {
			released++
		}
	}
	return released, err
}

func (s *HoldSweeper) sweepSession(ctx context.Context, sessionID string, now time.Time) bool {
	log := s.Log.WithField("session", sessionID)
	repo := s.Store.ForSession(sessionID)

	verified, err := repository.IsVerified(ctx, repo)
	if err != nil {
		log.WithError(err).Warn("sweeper: read session")
		return false
	}
	if verified {
		return false
	}
	hold, err := repository.LoadHold(ctx, repo)
	if err != nil && !errors.Is(err, repository.ErrInvalidValue) {
		log.WithError(err).Warn("sweeper: read hold")
		return false
	}
	if hold.ReservationID == "" {
		// The callback already settled this hold.
		return false
	}
	if err == nil && !hold.ExpiresAt.IsZero() && !hold.Expired(now) {
		return false
	}
	holder, err := repository.ClaimSettlement(ctx, repo, repository.SettledBySweeper)
	if err != nil {
		log.WithError(err).Warn("sweeper: claim hold")
		return false
	}
	if holder != repository.SettledBySweeper {
		// A callback is verifying this hold and will settle it.
		return false
	}

	_ = s.Lifecycle.Release(ctx, hold.ReservationID)
	if err := repo.Clear(ctx, repository.HoldKeys...); err != nil {
		log.WithError(err).Warn("sweeper: clear hold")
	}
	log.WithField("reservation_id", hold.ReservationID).Info("released abandoned hold")
	if s.Publisher != nil {
		_ = s.Publisher.Publish(ctx, q.LifecycleEvent{
			Kind:          q.KindHoldSwept,
			ReservationID: hold.ReservationID,
		})
	}
	return true
}

// Start schedules Sweep every interval until ctx is done or the returned
// scheduler is shut down.  Overlapping runs are skipped.
func (s *HoldSweeper) Start(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := s.Sweep(ctx)
			if err != nil {
				s.Log.WithError(err).Warn("sweeper: claim expired holds")
			}
			if n > 0 {
				s.Log.WithField("released", n).Info("sweeper pass done")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	return sched, nil
}
