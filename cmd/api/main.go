package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-builders/giveaway-tickets/internal/cache"
	cachememory "github.com/open-builders/giveaway-tickets/internal/cache/memory"
	cacheredis "github.com/open-builders/giveaway-tickets/internal/cache/redis"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	"github.com/open-builders/giveaway-tickets/internal/config"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	ds "github.com/open-builders/giveaway-tickets/internal/domain/story"
	apphttp "github.com/open-builders/giveaway-tickets/internal/http"
	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	"github.com/open-builders/giveaway-tickets/internal/platform/db"
	otelplatform "github.com/open-builders/giveaway-tickets/internal/platform/otel"
	redisplatform "github.com/open-builders/giveaway-tickets/internal/platform/redis"
	"github.com/open-builders/giveaway-tickets/internal/platform/telegram"
	"github.com/open-builders/giveaway-tickets/internal/repository/memory"
	pgrepo "github.com/open-builders/giveaway-tickets/internal/repository/postgres"
	"github.com/open-builders/giveaway-tickets/internal/service/boost"
	"github.com/open-builders/giveaway-tickets/internal/service/captcha"
	"github.com/open-builders/giveaway-tickets/internal/service/fraud"
	giveawaysvc "github.com/open-builders/giveaway-tickets/internal/service/giveaway"
	"github.com/open-builders/giveaway-tickets/internal/service/participation"
	"github.com/open-builders/giveaway-tickets/internal/service/referral"
	"github.com/open-builders/giveaway-tickets/internal/service/story"
	"github.com/open-builders/giveaway-tickets/internal/service/task"
	"github.com/open-builders/giveaway-tickets/internal/workers"
)

const serviceName = "giveaway-tickets"

// stores groups the backends chosen by configuration.
type stores struct {
	giveaways      dg.Repository
	participations dp.Repository
	stories        ds.Repository
	ephemeral      cache.ExpiringStore
	sweeper        cache.Sweeper
	rdb            *redisplatform.Client

	checks  []func(ctx context.Context) error
	closers []func() error
}

func (s *stores) ready(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	switch cfg.Database.Backend {
	case config.BackendMemory:
		mem := memory.NewStore()
		s.giveaways, s.participations, s.stories = mem.Giveaways, mem.Participations, mem.Stories
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
	default:
		pg, err := db.Open(ctx, cfg.Database.URL, db.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pg.Close)
		s.checks = append(s.checks, pg.PingContext)
		if cfg.Database.AutoMigrate {
			applied, err := db.Migrate(ctx, pg)
			if err != nil {
				s.close()
				return nil, err
			}
			logger.Info().Strs("versions", applied).Msg("migrations applied")
		}
		s.giveaways = pgrepo.NewGiveawayRepository(pg)
		s.participations = pgrepo.NewParticipationRepository(pg)
		s.stories = pgrepo.NewStoryRepository(pg)
	}

	if cfg.EphemeralBackend == config.BackendRedis || cfg.Workers.StreamEnabled {
		rdb, err := redisplatform.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.close()
			return nil, err
		}
		s.rdb = rdb
		s.closers = append(s.closers, rdb.Close)
		s.checks = append(s.checks, rdb.HealthCheck)
	}

	if cfg.EphemeralBackend == config.BackendRedis {
		s.ephemeral = cacheredis.NewStore(s.rdb)
	} else {
		mem := cachememory.NewStore()
		s.ephemeral, s.sweeper = mem, mem
	}
	return s, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger.Init(serviceName, cfg.Debug)

	shutdownTracing, err := otelplatform.Setup(ctx, serviceName, otelplatform.Config{
		Enabled:  cfg.OTel.Enabled,
		Endpoint: cfg.OTel.Endpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer st.close()

	tg := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIBaseURL, 10*time.Second)

	giveaways := giveawaysvc.NewService(st.giveaways, cfg.IsAdmin)
	boosts := boost.NewVerifier(st.giveaways, st.participations, tg, cfg.Boost.MaxPerChannel)
	services := apphttp.Services{
		Giveaways: giveaways,
		Ledger: participation.NewLedger(
			giveaways,
			st.participations,
			tg,
			fraud.NewGate(fraud.DefaultPolicy{}, st.participations, cfg.Fraud.Threshold),
			referral.NewTracker(st.participations),
		),
		Boosts:  boosts,
		Stories: story.NewWorkflow(st.giveaways, st.participations, st.stories),
		Tasks:   task.NewService(st.giveaways, st.participations, cfg.IsAdmin),
		Captcha: captcha.NewService(st.ephemeral, captcha.Config{
			TTL:         cfg.Captcha.TTL,
			MaxAttempts: cfg.Captcha.MaxAttempts,
			RateLimit:   cfg.Captcha.RateLimit,
			RateWindow:  cfg.Captcha.RateWindow,
		}),
	}

	lifecycle := workers.NewLifecycleWorker(giveaways, cfg.Workers.LifecycleInterval)
	lifecycle.Start(ctx)
	defer lifecycle.Stop()
	if st.sweeper != nil {
		sweeper := workers.NewCaptchaSweeper(st.sweeper, cfg.Captcha.SweepInterval)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}
	if cfg.Workers.StreamEnabled {
		stream := workers.NewRedisStreamWorker(st.rdb, cfg.Workers.StreamKey, cfg.Workers.StreamGroup, st.participations, boosts)
		go stream.Start(ctx)
	}

	router := apphttp.NewRouter(apphttp.RouterConfig{
		Debug:          cfg.Debug,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Auth:           mw.InitData(cfg.Telegram.BotToken, cfg.Telegram.InitDataTTL),
		Ready:          st.ready,
	}, services)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown")
	}
	logger.Info().Msg("server stopped")
}
