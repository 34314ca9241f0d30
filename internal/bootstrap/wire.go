package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/config"
	"github.com/baechuer/seatwatch/internal/infrastructure/backup"
	"github.com/baechuer/seatwatch/internal/infrastructure/fetcher"
	"github.com/baechuer/seatwatch/internal/infrastructure/idempotency"
	"github.com/baechuer/seatwatch/internal/infrastructure/notify"
	"github.com/baechuer/seatwatch/internal/infrastructure/ratelimit"
	"github.com/baechuer/seatwatch/internal/infrastructure/store"
	"github.com/baechuer/seatwatch/internal/transport/discord"
	"github.com/baechuer/seatwatch/internal/transport/http/handlers"
	"github.com/baechuer/seatwatch/internal/transport/http/router"
	"github.com/baechuer/seatwatch/internal/transport/http/server"
)

const mirrorFlushWait = 30 * time.Second

// Core is the state file, shared state and registry. CLI commands that only
// read or edit requests need nothing else.
type Core struct {
	Store    *store.FileStore
	State    *tracking.State
	Registry *tracking.Registry
	Catalog  *fetcher.CatalogFetcher
	Course   *fetcher.CoursePageFetcher
}

// NewCore loads the state file. A corrupt file is a startup error.
func NewCore(ctx context.Context, cfg *config.Config, lg zerolog.Logger) (*Core, error) {
	fs := store.NewFileStore(cfg.StateFile, lg)
	if cfg.S3BackupEnabled {
		m, err := backup.NewS3Mirror(ctx, backup.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Key:             cfg.S3Key,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, lg)
		if err != nil {
			return nil, fmt.Errorf("s3 backup: %w", err)
		}
		fs = fs.WithMirror(m)
		lg.Info().Str("bucket", cfg.S3Bucket).Str("key", cfg.S3Key).Msg("s3 snapshot backup enabled")
	}

	st, err := tracking.LoadState(fs)
	if err != nil {
		return nil, err
	}
	lg.Info().Str("path", cfg.StateFile).Int("requests", st.Snapshot().Len()).Msg("state loaded")

	catalog := fetcher.NewCatalogFetcher(fetcher.CatalogConfig{
		APIURL:     cfg.CatalogAPIURL,
		Timeout:    cfg.CatalogTimeout,
		MaxRetries: cfg.CatalogMaxRetries,
	}, lg)
	course := fetcher.NewCoursePageFetcher(fetcher.CoursePageConfig{
		SearchURL:          cfg.CatalogSearchURL,
		Timeout:            cfg.BrowserTimeout,
		LaunchTimeout:      cfg.BrowserLaunchWait,
		Bin:                cfg.BrowserBin,
		Headless:           cfg.BrowserHeadless,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerReset:       cfg.BreakerReset,
	}, lg)

	reg := tracking.NewRegistry(st, tracking.NewFetchers(catalog, course), tracking.RegistryConfig{
		MaxRequestsPerUser: cfg.MaxRequestsPerUser,
		DefaultTerm:        cfg.DefaultTerm,
	}, lg)

	return &Core{Store: fs, State: st, Registry: reg, Catalog: catalog, Course: course}, nil
}

// Close releases the shared browser and flushes the pending snapshot backup.
func (c *Core) Close() {
	if c.Course != nil {
		_ = c.Course.Close()
	}
	if c.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorFlushWait)
		defer cancel()
		if err := c.Store.Close(ctx); err != nil {
			zlog.Warn().Err(err).Msg("snapshot backup not flushed before exit")
		}
	}
}

type App struct {
	*Core
	cfg     *config.Config
	lg      zerolog.Logger
	sweeper *tracking.Sweeper
	web     *server.Server // nil when HTTP_ENABLED=false
	bot     *discord.Bot   // nil when DISCORD_ENABLED=false

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (a *App) Sweeper() *tracking.Sweeper { return a.sweeper }

func NewApp() (*App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return Build(cfg, zlog.Logger)
}

// Build wires every component from cfg. Nothing connects to Discord until Start;
// RabbitMQ is dialled here so a bad URL fails fast.
func Build(cfg *config.Config, lg zerolog.Logger) (*App, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var closers []func()
	cleanupAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	core, err := NewCore(ctx, cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, core.Close)

	// Discord session (shared by sender + command adapter)
	var session *discordgo.Session
	if cfg.DiscordEnabled {
		session, err = discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			cleanupAll()
			return nil, nil, fmt.Errorf("discord session: %w", err)
		}
		session.Identify.Intents = discordgo.IntentsGuilds
	}

	// Sender
	var primary notify.Sender
	switch cfg.NotifySink {
	case "discord":
		primary = notify.NewDiscordSender(session, lg)
	default:
		primary = notify.NewLogSender(lg)
	}
	var secondary []notify.Sender
	if cfg.RabbitEnabled {
		pub, err := notify.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, lg)
		if err != nil {
			cleanupAll()
			return nil, nil, fmt.Errorf("rabbit publisher: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		secondary = append(secondary, pub)
		lg.Info().Str("exchange", cfg.RabbitExchange).Msg("rabbit publisher ready")
	}
	sender := notify.NewFanout(primary, lg, secondary...)

	// Redis (idempotency + notification rate limit)
	var idem tracking.IdempotencyStore = idempotency.NewNoopStore()
	var limiter tracking.RateLimiter = ratelimit.Noop{}
	readyChecks := map[string]handlers.ReadyCheck{}
	if cfg.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		idem = idempotency.NewRedisStore(rdb, lg)
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.NotifyRLLimit, cfg.NotifyRLWindow, lg)
		readyChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		lg.Info().
			Str("addr", cfg.RedisAddr).
			Int("db", cfg.RedisDB).
			Msg("redis enabled for notification idempotency + rate limit")
	} else {
		lg.Info().Msg("redis disabled (idempotency + notification rate limit)")
	}

	sweeper := tracking.NewSweeper(core.State, tracking.NewFetchers(core.Catalog, core.Course), sender, idem, limiter, tracking.SweeperConfig{
		Interval:       cfg.CheckInterval,
		Delay:          cfg.CheckDelay,
		Workers:        cfg.SweepWorkers,
		BackoffAfter:   cfg.BackoffAfter,
		IdempotencyTTL: cfg.NotifyIdempotencyTTL,
	}, lg)

	app := &App{Core: core, cfg: cfg, lg: lg, sweeper: sweeper}

	// Discord commands
	if session != nil {
		var bot *discord.Bot
		h := discord.NewHandler(core.Registry, core.Catalog, sweeper, discord.HandlerConfig{
			CheckInterval: cfg.CheckInterval,
			StartedAt:     time.Now(),
			Guilds:        func() int { return bot.Guilds() },
		}, lg)
		bot = discord.NewBot(session, h, cfg.DiscordAppID, cfg.DefaultTerm, lg)
		app.bot = bot
	}

	// Admin HTTP
	if cfg.HTTPEnabled {
		breakers := map[string]func() string{
			"course_page": func() string { return core.Course.BreakerState().String() },
		}
		httpHandler := router.New(
			handlers.NewRequestsHandler(core.Registry),
			handlers.NewStatusHandler(core.Registry, sweeper, breakers),
			handlers.NewHealthHandler(readyChecks),
			router.RateLimit{Enabled: cfg.RLEnabled, Limit: cfg.RLLimit, Window: cfg.RLWindow},
			lg,
		)
		app.web = server.NewServer(cfg.HTTPAddr, httpHandler, lg)
	}

	cleanup := func() {
		lg.Info().Msg("Performing final resource cleanup...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel()

		_ = app.Stop(ctx)
		cleanupAll()
	}

	return app, cleanup, nil
}

// Start runs the sweeper, the admin API and the Discord bot until ctx is
// cancelled, Stop is called, or one of them fails.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()
	defer close(done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sweeper.Run(gctx) })
	if a.web != nil {
		g.Go(func() error { return a.web.Start(gctx) })
	}
	if a.bot != nil {
		g.Go(func() error { return a.bot.Start(gctx) })
	}

	a.lg.Info().
		Bool("http", a.web != nil).
		Bool("discord", a.bot != nil).
		Msg("seatwatch started")
	return g.Wait()
}

// Stop cancels the running components and waits (bounded by ctx) for the
// in-flight sweep to apply and persist what it already fetched.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	a.lg.Info().Msg("Shutting down seatwatch gracefully...")
	cancel()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("shutdown: %w", ctx.Err())
	}

	if a.bot != nil {
		if cerr := a.bot.Stop(ctx); cerr != nil {
			a.lg.Warn().Err(cerr).Msg("discord close failed")
		}
	}
	return err
}
