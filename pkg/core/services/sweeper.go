package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/radflow/pkg/core/auction"
	"github.com/jakechorley/radflow/pkg/core/model"
)

const (
	defaultSweepInterval    = time.Minute
	defaultSweepConcurrency = 4
)

// SweepReport counts what one sweep did
type SweepReport struct {
	Due     int
	Results map[auction.CloseResult]int
	Skipped int
	Failed  int
}

// Sweeper periodically closes auctions whose window has ended. One scheduled job scans every
// Active Bidding shift; there are no per-shift timers.
type Sweeper struct {
	engine      *Engine
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	cron        *cron.Cron
}

func NewSweeper(engine *Engine, interval time.Duration, concurrency int, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	return &Sweeper{
		engine:      engine,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Sweep closes every due auction with bounded parallelism. A failure on one shift is logged and
// collected into the returned error; it never stops the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.engine.Registry().Now()
	report := SweepReport{Results: make(map[auction.CloseResult]int)}

	var due []model.Shift
	for _, shift := range s.engine.ListShifts(ctx, model.StatusActiveBidding) {
		if !shift.BiddingWindowOpen(now) {
			due = append(due, shift)
		}
	}
	report.Due = len(due)
	if len(due) == 0 {
		return report, nil
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, shift := range due {
		id := shift.ID
		g.Go(func() error {
			result, _, err := s.engine.Close(ctx, id, false)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Results[result]++
			case errors.Is(err, auction.ErrWindowOpen), errors.Is(err, model.ErrInvalidTransition):
				// extended or closed by someone else since the scan
				report.Skipped++
			default:
				report.Failed++
				errs = multierr.Append(errs, fmt.Errorf("shift %s: %w", id, err))
				s.logger.Error("Failed to close auction", zap.String("shift_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("Sweep complete",
		zap.Int("due", report.Due),
		zap.Int("filled", report.Results[auction.ClosedFilled]),
		zap.Int("pending_approval", report.Results[auction.ClosedPendingApproval]),
		zap.Int("expired", report.Results[auction.ClosedExpired]),
		zap.Int("extended", report.Results[auction.ClosedExtended]),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, errs
}

// Start schedules Sweep every interval until Stop. A sweep that overruns the interval delays
// the next one rather than overlapping it.
func (s *Sweeper) Start(ctx context.Context) error {
	logger := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Warn("Sweep finished with errors", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("Sweeper started", zap.Duration("interval", s.interval), zap.Int("concurrency", s.concurrency))
	return nil
}

// Stop unschedules the sweep and waits for a running one to finish or ctx to end
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
