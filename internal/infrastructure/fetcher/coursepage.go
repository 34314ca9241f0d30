package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/baechuer/seatwatch/internal/metrics"
	"github.com/baechuer/seatwatch/internal/pkg/circuitbreaker"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const resultsSelector = "#class-results"

type CoursePageConfig struct {
	SearchURL          string
	Timeout            time.Duration
	LaunchTimeout      time.Duration
	Bin                string
	Headless           bool
	BreakerMaxFailures int
	BreakerReset       time.Duration
}

// renderFunc returns the text of the results panel at url.
type renderFunc func(ctx context.Context, url string) (string, error)

// launchFunc starts Chrome and connects to it. browserCtx bounds the
// connection's lifetime; ctx only bounds the launch.
type launchFunc func(ctx, browserCtx context.Context) (*rod.Browser, func(), error)

// launchCall is one in-flight browser launch that checks can wait on.
type launchCall struct {
	done    chan struct{}
	browser *rod.Browser
	err     error
}

// CoursePageFetcher checks ByCourseID requests by rendering the public class list
// in headless Chrome. One browser is launched lazily and shared; each check uses
// its own incognito context under a hard deadline. The launch runs in its own
// goroutine so a slow start (or a Chromium download) never holds the lock and
// never outlives a check's deadline on the caller's side.
type CoursePageFetcher struct {
	cfg     CoursePageConfig
	breaker *circuitbreaker.CircuitBreaker
	render  renderFunc
	launch  launchFunc
	lg      zerolog.Logger

	life     context.Context // cancelled by Close
	stopLife context.CancelFunc

	mu        sync.Mutex
	browser   *rod.Browser
	cleanup   func()
	launching *launchCall
}

func NewCoursePageFetcher(cfg CoursePageConfig, lg zerolog.Logger) *CoursePageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 2 * time.Minute
	}
	life, stop := context.WithCancel(context.Background())
	f := &CoursePageFetcher{
		cfg:      cfg,
		breaker:  circuitbreaker.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerReset, 1),
		lg:       lg.With().Str("component", "coursepage_fetcher").Logger(),
		life:     life,
		stopLife: stop,
	}
	f.breaker.OnTransition(func(from, to circuitbreaker.CircuitState) {
		f.lg.Warn().Str("from", from.String()).Str("to", to.String()).Msg("browser breaker state changed")
		metrics.SetBreakerState("course_page", int(to))
	})
	f.render = f.renderPage
	f.launch = f.launchChrome
	return f
}

func (f *CoursePageFetcher) Kind() domain.Kind { return domain.KindByCourseID }

func (f *CoursePageFetcher) BreakerState() circuitbreaker.CircuitState { return f.breaker.State() }

func (f *CoursePageFetcher) pageURL(courseID, term string) string {
	q := url.Values{}
	q.Set("campusOrOnlineSelection", "A")
	q.Set("honors", "F")
	q.Set("keywords", courseID)
	q.Set("promod", "F")
	q.Set("searchType", "all")
	q.Set("term", term)
	return f.cfg.SearchURL + "?" + q.Encode()
}

func (f *CoursePageFetcher) Check(ctx context.Context, req domain.TrackingRequest) (res domain.FetchResult) {
	if req.Kind != domain.KindByCourseID {
		return domain.Transient("course page fetcher cannot check %s requests", req.Kind)
	}
	// rod reports some failures by panicking; a check must never take the sweep down.
	defer func() {
		if r := recover(); r != nil {
			f.lg.Error().Interface("panic", r).Str("request_id", req.ID).Msg("browser check panicked")
			res = domain.Transient("browser panic: %v", r)
		}
	}()

	target := f.pageURL(req.CourseID, req.Term)

	var text string
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
		t, err := f.render(ctx, target)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, circuitbreaker.ErrHalfOpenLimit):
		return domain.Transient("browser unavailable: %v", err)
	case err != nil:
		f.lg.Warn().Err(err).Str("request_id", req.ID).Str("course_id", req.CourseID).Msg("course page check failed")
		return domain.Transient("course page: %v", err)
	}

	seats, ok := parseSeatText(text)
	if !ok {
		return domain.NotFound("no seat information on course page")
	}
	title := seats.Title
	if title == "" {
		title = req.Label()
	}
	return domain.Available(seats.Open(), req.CourseID, title)
}

// Describe renders the page once to capture the course title.
func (f *CoursePageFetcher) Describe(ctx context.Context, req domain.TrackingRequest) (domain.Details, error) {
	res := f.Check(ctx, req)
	switch res.Status {
	case domain.FetchNotFound:
		return domain.Details{}, domain.ErrUpstreamNotFound(fmt.Sprintf("%s not found for %s", req.Label(), domain.TermName(req.Term)))
	case domain.FetchTransient:
		return domain.Details{}, errors.New(res.Detail)
	}
	return domain.Details{Title: res.Title}, nil
}

func (f *CoursePageFetcher) renderPage(ctx context.Context, target string) (string, error) {
	b, err := f.ensureBrowser(ctx)
	if err != nil {
		return "", err
	}

	incognito, err := b.Incognito()
	if err != nil {
		f.dropBrowser()
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Context(ctx).Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	el, err := page.Element(resultsSelector)
	if err != nil {
		return "", fmt.Errorf("wait for %s: %w", resultsSelector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return "", fmt.Errorf("wait visible: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("read results: %w", err)
	}
	return text, nil
}

// ensureBrowser returns the shared browser, starting or joining a launch if
// there is none. It gives up when ctx is done; the launch itself carries on
// (bounded by LaunchTimeout and Close) so the next check can use it.
func (f *CoursePageFetcher) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	if f.life.Err() != nil {
		f.mu.Unlock()
		return nil, errors.New("course page fetcher closed")
	}
	if f.browser != nil {
		b := f.browser
		f.mu.Unlock()
		if _, err := b.Context(ctx).Version(); err == nil {
			return b, nil
		}
		f.lg.Warn().Msg("stale browser connection, relaunching")
		f.mu.Lock()
		switch {
		case f.browser == b:
			f.closeLocked()
		case f.browser != nil:
			b = f.browser
			f.mu.Unlock()
			return b, nil
		}
	}
	call := f.launching
	if call == nil {
		call = &launchCall{done: make(chan struct{})}
		f.launching = call
		go f.runLaunch(call)
	}
	f.mu.Unlock()

	select {
	case <-call.done:
		return call.browser, call.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser launch: %w", ctx.Err())
	}
}

func (f *CoursePageFetcher) runLaunch(call *launchCall) {
	ctx, cancel := context.WithTimeout(f.life, f.cfg.LaunchTimeout)
	defer cancel()

	browser, cleanup, err := f.safeLaunch(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.launching = nil
	switch {
	case err != nil:
		call.err = err
	case f.life.Err() != nil:
		// closed while launching
		_ = browser.Close()
		cleanup()
		call.err = errors.New("course page fetcher closed")
	default:
		f.browser = browser
		f.cleanup = cleanup
		call.browser = browser
		f.lg.Info().Bool("headless", f.cfg.Headless).Msg("browser launched")
	}
	close(call.done)
}

func (f *CoursePageFetcher) safeLaunch(ctx context.Context) (b *rod.Browser, cleanup func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("browser launch panic: %v", r)
		}
	}()
	return f.launch(ctx, f.life)
}

func (f *CoursePageFetcher) launchChrome(ctx, browserCtx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().
		Context(ctx).
		Headless(f.cfg.Headless).
		NoSandbox(true).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("disable-extensions")).
		Set(flags.Flag("blink-settings"), "imagesEnabled=false")
	if f.cfg.Bin != "" {
		l = l.Bin(f.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().Context(browserCtx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return browser, func() { l.Kill(); l.Cleanup() }, nil
}

func (f *CoursePageFetcher) dropBrowser() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *CoursePageFetcher) closeLocked() {
	if f.browser != nil {
		_ = f.browser.Close()
		f.browser = nil
	}
	if f.cleanup != nil {
		f.cleanup()
		f.cleanup = nil
	}
}

// Close shuts the shared browser down and aborts any launch in progress.
func (f *CoursePageFetcher) Close() error {
	f.stopLife()
	f.dropBrowser()
	return nil
}
