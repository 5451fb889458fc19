/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/KaliNikolova/dayplanner/internal/api"
	"github.com/KaliNikolova/dayplanner/internal/cache"
	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/KaliNikolova/dayplanner/internal/config"
	"github.com/KaliNikolova/dayplanner/internal/db"
	"github.com/KaliNikolova/dayplanner/internal/eventbus"
	"github.com/KaliNikolova/dayplanner/internal/leadership"
	"github.com/KaliNikolova/dayplanner/internal/planner"
	"github.com/KaliNikolova/dayplanner/internal/schedule"
	"github.com/KaliNikolova/dayplanner/internal/scheduler"
	"github.com/KaliNikolova/dayplanner/internal/tasks"
	"github.com/KaliNikolova/dayplanner/internal/telemetry"
	"github.com/KaliNikolova/dayplanner/internal/version"
)

const (
	requestTimeout   = 60 * time.Second
	limiterPruneTick = time.Minute
	limiterMaxIdle   = 10 * time.Minute
	dbMetricsTick    = 30 * time.Second
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       eventbus.Bus
	api       *api.API
	limiter   *api.RateLimiter
	scheduler *scheduler.Service
	cleaner   *scheduler.Cleaner
	election  *leadership.Election
	leader    leadership.Leader

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.HTTPMiddleware("dayplanner-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(timeoutUnlessUpgrade(requestTimeout))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		leader: leadership.Always{},
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// The event stream is long-lived; the middleware timeout covers everything else.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

// timeoutUnlessUpgrade applies the chi timeout to every request except
// websocket upgrades.
func timeoutUnlessUpgrade(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		entityCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = entityCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	if err := s.initEventBus(); err != nil {
		return err
	}

	loc := s.cfg.Location()
	engine := planner.NewEngine(clock.System{}, loc, s.logger)

	taskSvc := tasks.NewService(database, s.bus, s.logger)
	slotSvc := schedule.NewService(database, s.bus, loc, s.logger)
	s.scheduler = scheduler.New(database, engine, taskSvc, slotSvc, clock.System{}, s.bus, s.logger)
	if s.cache != nil {
		taskSvc.SetCache(s.cache)
		s.scheduler.SetCache(s.cache)
	}

	if s.cfg.LeaderElectionEnabled {
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		s.DeferClose(client.Close)

		electionCfg := leadership.DefaultConfig()
		electionCfg.InstanceID = s.cfg.InstanceID
		s.election = leadership.NewElection(client, electionCfg, s.logger)
		s.leader = s.election

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", electionCfg.InstanceID).
			Msg("leader election enabled for cleanup")
	}

	cleaner, err := scheduler.NewCleaner(database, s.cfg.CleanupSchedule, s.cfg.Retention(), loc, s.leader, clock.System{}, s.logger)
	if err != nil {
		return fmt.Errorf("create cleaner: %w", err)
	}
	s.cleaner = cleaner

	s.api = api.New(s.scheduler, taskSvc, slotSvc, s.bus, []byte(s.cfg.JWTSigningKey), s.logger)
	s.limiter = api.NewRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.logger)
	s.api.SetRateLimiter(s.limiter)

	return nil
}

// initEventBus connects the configured transport. A remote bus that cannot
// be reached degrades to the in-process bus so a single instance still works.
func (s *Server) initEventBus() error {
	busCfg := eventbus.Config{Backend: eventbus.Backend(s.cfg.EventBus)}
	busCfg.NATS = eventbus.DefaultNATSConfig()
	busCfg.NATS.URL = s.cfg.NATSURL
	busCfg.Redis = eventbus.DefaultRedisConfig()
	busCfg.Redis.Addr = s.cfg.RedisAddr
	busCfg.Redis.Password = s.cfg.RedisPassword
	busCfg.Redis.DB = s.cfg.RedisDB

	bus, err := eventbus.New(busCfg, s.logger)
	if err != nil {
		if busCfg.Backend == eventbus.BackendMemory {
			return fmt.Errorf("create event bus: %w", err)
		}
		s.logger.Warn().Err(err).Str("backend", s.cfg.EventBus).Msg("event bus unavailable, falling back to in-process bus")
		bus = eventbus.NewMemory()
	}
	s.bus = bus
	s.DeferClose(bus.Close)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.election != nil {
		s.election.Start(ctx)
	}
	if s.cleaner != nil {
		s.cleaner.Start()
	}

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			cache.RunInvalidator(ctx, s.cache, s.bus)
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		prune := time.NewTicker(limiterPruneTick)
		dbStats := time.NewTicker(dbMetricsTick)
		defer prune.Stop()
		defer dbStats.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-prune.C:
				if n := s.limiter.Prune(limiterMaxIdle); n > 0 {
					s.logger.Debug().Int("clients", n).Msg("pruned idle rate limiters")
				}
			case <-dbStats.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	if s.cleaner != nil {
		s.cleaner.Stop()
	}
	if s.election != nil {
		s.election.Stop()
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Leader  *bool  `json:"leader,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: version.Version}
	if s.election != nil {
		isLeader := s.election.IsLeader()
		resp.Leader = &isLeader
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
