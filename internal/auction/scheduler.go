package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
)

// TickFunc advances one room's timer.
type TickFunc func(ctx context.Context, code string) error

// DiscoverFunc lists the codes of every room that should be ticked.
type DiscoverFunc func(ctx context.Context) ([]string, error)

// Scheduler runs one ticker goroutine per live room so timers resolve
// without anyone polling. Watch and Unwatch are no-ops while it is not
// running.
type Scheduler struct {
	interval time.Duration
	rescan   time.Duration
	tick     TickFunc
	logger   *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	rooms map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// NewScheduler returns a stopped Scheduler that ticks each room every
// interval and re-discovers rooms every rescan.
func NewScheduler(interval, rescan time.Duration, tick TickFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		rescan:   rescan,
		tick:     tick,
		logger:   logger,
		rooms:    make(map[string]context.CancelFunc),
	}
}

// Run ticks the rooms reported by discover until ctx is cancelled. discover
// is called on start and then every rescan interval, so rooms that went
// live elsewhere are picked up and rooms that left are dropped. It waits for
// every room goroutine to exit before returning.
func (s *Scheduler) Run(ctx context.Context, discover DiscoverFunc) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.sync(ctx, discover); err != nil {
		s.stop()
		return err
	}
	s.logger.InfoContext(ctx, "room scheduler started", slog.Int("rooms", s.count()))

	t := time.NewTicker(s.rescan)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stop()
			s.logger.Info("room scheduler stopped")
			return nil
		case <-t.C:
			if err := s.sync(ctx, discover); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "room rescan failed", slog.Any("error", err))
			}
		}
	}
}

// sync watches every discovered room and unwatches rooms that were watched
// before discovery began but were not reported. Rooms watched while discover
// runs are left alone.
func (s *Scheduler) sync(ctx context.Context, discover DiscoverFunc) error {
	s.mu.Lock()
	before := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		before = append(before, code)
	}
	s.mu.Unlock()

	codes, err := discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering rooms: %w", err)
	}
	found := make(map[string]struct{}, len(codes))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		found[code] = struct{}{}
		s.watchLocked(code)
	}
	for _, code := range before {
		if _, ok := found[code]; ok {
			continue
		}
		if cancel, ok := s.rooms[code]; ok {
			cancel()
			delete(s.rooms, code)
		}
	}
	return nil
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	s.ctx = nil
	for code, cancel := range s.rooms {
		cancel()
		delete(s.rooms, code)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Watch starts ticking code if the scheduler is running.
func (s *Scheduler) Watch(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchLocked(code)
}

func (s *Scheduler) watchLocked(code string) {
	if s.ctx == nil {
		return
	}
	if _, ok := s.rooms[code]; ok {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.rooms[code] = cancel
	s.wg.Add(1)
	go s.loop(ctx, code)
}

// Unwatch stops ticking code. It does not wait for the goroutine to exit,
// so a tick may call it for its own room.
func (s *Scheduler) Unwatch(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.rooms[code]; ok {
		cancel()
		delete(s.rooms, code)
	}
}

// Watching reports whether code is being ticked.
func (s *Scheduler) Watching(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[code]
	return ok
}

func (s *Scheduler) loop(ctx context.Context, code string) {
	defer s.wg.Done()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := s.tick(ctx, code)
			switch {
			case err == nil, ctx.Err() != nil:
			case errors.Is(err, auctionerrors.ErrRoomNotFound):
				s.Unwatch(code)
				return
			default:
				s.logger.WarnContext(ctx, "room tick failed",
					slog.String("room", code),
					slog.Any("error", err),
				)
			}
		}
	}
}
