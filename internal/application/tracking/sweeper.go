package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/baechuer/seatwatch/internal/metrics"
	appctx "github.com/baechuer/seatwatch/internal/pkg/context"
	"github.com/baechuer/seatwatch/internal/pkg/workerpool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBackoffEvery caps how rarely a repeatedly failing request is visited.
const maxBackoffEvery = 8

type SweeperConfig struct {
	Interval       time.Duration
	Delay          time.Duration // pacing between upstream calls
	Workers        int
	BackoffAfter   int // consecutive transient errors before backing off; 0 disables
	IdempotencyTTL time.Duration
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Visited    int
	Skipped    int
	Notified   int
	Transient  int
	Incomplete bool // cancelled before every due request was checked
}

// Sweeper runs reconciliation sweeps: snapshot, fetch without the lock, apply and
// persist once.
type Sweeper struct {
	state    *State
	fetchers Fetchers
	sender   Sender
	idem     IdempotencyStore // nil => disabled
	limiter  RateLimiter      // nil => unlimited
	cfg      SweeperConfig
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	lg       zerolog.Logger

	mu       sync.Mutex
	sweepNo  int
	failures map[string]int
	last     SweepReport
}

func NewSweeper(state *State, fetchers Fetchers, sender Sender, idem IdempotencyStore, limiter RateLimiter, cfg SweeperConfig, lg zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	return &Sweeper{
		state:    state,
		fetchers: fetchers,
		sender:   sender,
		idem:     idem,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
		lg:       lg.With().Str("component", "sweeper").Logger(),
		failures: map[string]int{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.lg.Info().Dur("interval", s.cfg.Interval).Dur("delay", s.cfg.Delay).Int("workers", s.cfg.Workers).Msg("sweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.lg.Error().Err(err).Msg("sweep failed")
		}
		select {
		case <-ctx.Done():
			s.lg.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// LastReport returns the most recent sweep summary.
func (s *Sweeper) LastReport() SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type outcome struct {
	req      domain.TrackingRequest
	res      domain.FetchResult
	checked  time.Time
	visited  bool
	notify   bool // rising edge detected
	notified bool // notification delivered (or already delivered before a crash)
}

// SweepOnce checks every due request once. Errors from individual requests are logged
// and never abort the sweep; the returned error is only a failed persist.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	report := SweepReport{ID: uuid.NewString(), StartedAt: s.now()}
	ctx = appctx.WithSweepID(ctx, report.ID)
	lg := s.lg.With().Str("sweep_id", report.ID).Logger()

	snap := s.state.Snapshot()
	due, skipped := s.dueRequests(snap)
	report.Skipped = skipped
	metrics.SetBackedOffRequests(skipped)

	outcomes := s.fetchAll(ctx, due)

	for i := range outcomes {
		o := &outcomes[i]
		if !o.visited {
			report.Incomplete = true
			continue
		}
		report.Visited++
		if o.res.Status == domain.FetchTransient {
			report.Transient++
			lg.Debug().Str("request_id", o.req.ID).Str("detail", o.res.Detail).Msg("transient fetch error")
		}
		o.notify = risingEdge(o.req, o.res)
		if o.notify && s.state.Has(o.req.ID) {
			o.notified = s.deliver(ctx, lg, o.req, o.res)
			if o.notified {
				report.Notified++
			}
		}
	}

	err := s.apply(outcomes)
	s.trackFailures(snap, outcomes)

	report.Duration = s.now().Sub(report.StartedAt)
	outcomeLabel := "ok"
	switch {
	case err != nil:
		outcomeLabel = "persist_error"
	case report.Incomplete:
		outcomeLabel = "cancelled"
	}
	metrics.RecordSweep(outcomeLabel, report.Duration)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	ev := lg.Info()
	if err != nil {
		ev = lg.Error().Err(err)
	}
	ev.Int("visited", report.Visited).
		Int("skipped", report.Skipped).
		Int("notified", report.Notified).
		Int("transient", report.Transient).
		Bool("incomplete", report.Incomplete).
		Dur("duration", report.Duration).
		Msg("sweep finished")

	if err != nil {
		return report, fmt.Errorf("sweep %s: %w", report.ID, err)
	}
	return report, nil
}

// dueRequests applies the transient-error backoff: after BackoffAfter consecutive
// failures a request is visited every 2^k sweeps, capped at maxBackoffEvery.
func (s *Sweeper) dueRequests(set domain.RequestSet) ([]domain.TrackingRequest, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepNo++

	if s.cfg.BackoffAfter <= 0 {
		return set.Requests, 0
	}

	due := make([]domain.TrackingRequest, 0, len(set.Requests))
	skipped := 0
	for _, r := range set.Requests {
		f := s.failures[r.ID]
		if f >= s.cfg.BackoffAfter {
			every := 1 << uint(f-s.cfg.BackoffAfter+1)
			if every > maxBackoffEvery {
				every = maxBackoffEvery
			}
			if s.sweepNo%every != 0 {
				skipped++
				continue
			}
		}
		due = append(due, r)
	}
	return due, skipped
}

func (s *Sweeper) fetchAll(ctx context.Context, due []domain.TrackingRequest) []outcome {
	outcomes := make([]outcome, len(due))
	for i, r := range due {
		outcomes[i].req = r
	}

	pool := workerpool.NewWorkerPool(s.cfg.Workers)
	for i := range due {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.Delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		o := &outcomes[i]
		pool.Submit(func() {
			o.res = s.check(ctx, o.req)
			o.checked = s.now()
			o.visited = true
		})
	}
	pool.Wait()
	return outcomes
}

// check dispatches to the kind's fetcher and converts panics to transient results.
func (s *Sweeper) check(ctx context.Context, req domain.TrackingRequest) (res domain.FetchResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.lg.Error().Interface("panic", r).Str("request_id", req.ID).Msg("fetcher panicked")
			res = domain.Transient("fetcher panic: %v", r)
		}
		metrics.RecordFetch(string(req.Kind), res.Status.String(), time.Since(start))
	}()

	f, ok := s.fetchers[req.Kind]
	if !ok {
		return domain.Transient("no fetcher for kind %q", req.Kind)
	}
	return f.Check(ctx, req)
}

// risingEdge: seats are open now and the user has not been told about this opening.
func risingEdge(prev domain.TrackingRequest, res domain.FetchResult) bool {
	if !res.Open() {
		return false
	}
	return prev.SeatsOpen() == 0 || prev.LastNotifiedAt == nil
}

func idempotencyKey(r domain.TrackingRequest) string {
	marker := "never"
	if r.LastCheckedAt != nil {
		marker = r.LastCheckedAt.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("notify:%s:%s", r.ID, marker)
}

// deliver sends one notification. It reports false when the edge must stay armed
// (send failure or rate limit) so the next sweep tries again.
func (s *Sweeper) deliver(ctx context.Context, lg zerolog.Logger, req domain.TrackingRequest, res domain.FetchResult) bool {
	key := idempotencyKey(req)
	lg = lg.With().Str("request_id", req.ID).Str("user_id", req.OwnerUserID).Logger()

	if s.idem != nil {
		seen, err := s.idem.Seen(ctx, key)
		if err != nil {
			lg.Warn().Err(err).Msg("idempotency check failed, sending anyway")
		} else if seen {
			lg.Info().Str("key", key).Msg("idempotent skip (already sent)")
			metrics.RecordNotification("deduplicated")
			return true
		}
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.OwnerUserID)
		if err != nil {
			lg.Warn().Err(err).Msg("notification rate limit unavailable")
		}
		if !allowed {
			lg.Warn().Msg("notification rate limited, will retry next sweep")
			metrics.RecordNotification("rate_limited")
			return false
		}
	}

	// the idempotency and rate limit round-trips can be slow; a request removed
	// meanwhile is not notified. Removal after this point still gets one message.
	if !s.state.Has(req.ID) {
		lg.Info().Msg("request removed before send, skipping notification")
		return false
	}

	n := domain.Notification{
		ChannelID: req.NotifyChannelID,
		UserID:    req.OwnerUserID,
		Text:      notificationText(req, res),
		Request:   req,
		Result:    res,
	}
	if err := s.sender.Send(ctx, n); err != nil {
		lg.Error().Err(err).Msg("notification send failed, will retry next sweep")
		metrics.RecordNotification("failed")
		return false
	}

	if s.idem != nil {
		if err := s.idem.MarkSent(ctx, key, s.cfg.IdempotencyTTL); err != nil {
			lg.Warn().Err(err).Str("key", key).Msg("idempotency mark failed (send already succeeded)")
		}
	}

	metrics.RecordNotification("sent")
	lg.Info().Str("target", req.Label()).Int("seats_open", res.SeatsOpen).Msg("seat notification sent")
	return true
}

// apply writes every visited outcome into the live set in one persisted update.
// Requests removed while the sweep was in flight are skipped.
func (s *Sweeper) apply(outcomes []outcome) error {
	anyVisited := false
	for _, o := range outcomes {
		if o.visited {
			anyVisited = true
			break
		}
	}
	if !anyVisited {
		return nil
	}

	return s.state.Update(func(set *domain.RequestSet) error {
		for _, o := range outcomes {
			if !o.visited {
				continue
			}
			live := set.Get(o.req.ID)
			if live == nil {
				continue
			}
			live.MarkChecked(o.checked)

			switch o.res.Status {
			case domain.FetchAvailable:
				if o.notify && !o.notified {
					// edge stays armed: seats are not advanced until the user is told
					continue
				}
				if o.notified {
					live.MarkNotified(o.checked)
				}
				live.SetSeats(o.res.SeatsOpen)
			case domain.FetchUnavailable, domain.FetchNotFound:
				live.SetSeats(0)
			case domain.FetchTransient:
			}
		}
		return nil
	})
}

func (s *Sweeper) trackFailures(snap domain.RequestSet, outcomes []outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range outcomes {
		if !o.visited {
			continue
		}
		if o.res.Status == domain.FetchTransient {
			s.failures[o.req.ID]++
		} else {
			delete(s.failures, o.req.ID)
		}
	}
	for id := range s.failures {
		if snap.IndexOf(id) < 0 {
			delete(s.failures, id)
		}
	}
}
