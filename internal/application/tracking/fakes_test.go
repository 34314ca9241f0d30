package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
)

var errBoom = errors.New("boom")

// ---- Fake Store ----

type fakeStore struct {
	mu      sync.Mutex
	set     domain.RequestSet
	saves   int
	saveErr error
	loadErr error
}

func (s *fakeStore) Load() (domain.RequestSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.RequestSet{}, s.loadErr
	}
	return s.set.Clone(), nil
}

func (s *fakeStore) Save(set domain.RequestSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.set = set.Clone()
	return nil
}

func (s *fakeStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeStore) Persisted() domain.RequestSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Clone()
}

func (s *fakeStore) SetSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// ---- Fake Fetcher ----

// fakeFetcher answers from a per-request script; each Check pops the next result.
// An empty script repeats the last result.
type fakeFetcher struct {
	kind domain.Kind

	mu       sync.Mutex
	script   map[string][]domain.FetchResult
	last     map[string]domain.FetchResult
	calls    map[string]int
	onCheck  func(req domain.TrackingRequest)
	details  domain.Details
	descErr  error
	describe int
}

func newFakeFetcher(kind domain.Kind) *fakeFetcher {
	return &fakeFetcher{
		kind:   kind,
		script: map[string][]domain.FetchResult{},
		last:   map[string]domain.FetchResult{},
		calls:  map[string]int{},
	}
}

func (f *fakeFetcher) Kind() domain.Kind { return f.kind }

func (f *fakeFetcher) Script(id string, results ...domain.FetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[id] = append(f.script[id], results...)
}

func (f *fakeFetcher) Check(ctx context.Context, req domain.TrackingRequest) domain.FetchResult {
	f.mu.Lock()
	hook := f.onCheck
	f.calls[req.ID]++
	var res domain.FetchResult
	if q := f.script[req.ID]; len(q) > 0 {
		res = q[0]
		f.script[req.ID] = q[1:]
		f.last[req.ID] = res
	} else if prev, ok := f.last[req.ID]; ok {
		res = prev
	} else {
		res = domain.Unavailable("")
	}
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return res
}

func (f *fakeFetcher) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFetcher) Describe(ctx context.Context, req domain.TrackingRequest) (domain.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describe++
	return f.details, f.descErr
}

// ---- Fake Sender ----

type fakeSender struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (s *fakeSender) Send(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *fakeSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ---- Fake Idempotency ----

type fakeIdem struct {
	mu    sync.Mutex
	seen  map[string]bool
	marks int
}

func newFakeIdem() *fakeIdem { return &fakeIdem{seen: map[string]bool{}} }

func (f *fakeIdem) Seen(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[key], nil
}

func (f *fakeIdem) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[key] = true
	f.marks++
	return nil
}

// ---- Fake Limiter ----

type fakeLimiter struct {
	mu      sync.Mutex
	allow   bool
	onAllow func(userID string)
}

func (l *fakeLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	l.mu.Lock()
	allow, hook := l.allow, l.onAllow
	l.mu.Unlock()
	if hook != nil {
		hook(userID)
	}
	return allow, nil
}

func (l *fakeLimiter) Set(allow bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allow = allow
}

// ---- Clock ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
