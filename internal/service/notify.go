package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"owl-notify/common/database"
	commonredis "owl-notify/common/redis"
	"owl-notify/internal/config"
	"owl-notify/internal/datasource"
	"owl-notify/internal/evaluator"
	"owl-notify/internal/notification"
	"owl-notify/internal/query"
	"owl-notify/internal/queue"
	"owl-notify/internal/repository"
	"owl-notify/internal/resolver"
	"owl-notify/internal/scheduler"
	"owl-notify/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// publisher announces inserted events and releases its transport on Close
type publisher interface {
	notification.Announcer
	Close(ctx context.Context) error
}

// NotifyService wires the notify store, datasource, state store, queue and evaluators
type NotifyService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	datasource  *sql.DB
	redisClient *redis.Client
	publisher   publisher
	library     *notification.Library
	scheduler   *scheduler.Scheduler
	httpServer  *http.Server
}

// NewNotifyService creates the service
func NewNotifyService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*NotifyService, error) {
	s := &NotifyService{
		config: cfg,
		logger: logger,
	}

	if err := s.init(ctx); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *NotifyService) init(ctx context.Context) error {
	cfg := s.config
	var err error

	// 1. databases
	s.db, err = database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect notify store: %w", err)
	}
	s.datasource, err = database.NewDatasourceDB(&cfg.Datasource)
	if err != nil {
		return fmt.Errorf("failed to connect datasource: %w", err)
	}

	// 2. redis, only when a backend needs it
	if cfg.State.Backend == "redis" || cfg.Queue.Backend == "redis" {
		s.redisClient, err = commonredis.Connect(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
	}

	// 3. state store and queue
	stateStore, err := newStateStore(cfg, s.db, s.redisClient, s.logger)
	if err != nil {
		return err
	}
	s.publisher, err = newPublisher(ctx, cfg, s.redisClient)
	if err != nil {
		return err
	}

	// 4. templates
	s.library, err = notification.NewLibrary(cfg.Templates.Dir, s.logger.Named("templates"))
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 5. repositories
	configRepo := repository.NewNotificationConfigRepository(s.db, s.logger)
	queryRepo := repository.NewNotificationQueryRepository(s.db, s.logger)
	recipientRepo := repository.NewRecipientRepository(s.db, s.logger)
	eventRepo := repository.NewNotificationEventRepository(s.db, s.logger)

	// 6. engine, resolver, builder
	engine := query.NewEngine(datasource.NewSQLExecutor(s.datasource, s.logger), s.logger)
	configResolver := resolver.NewResolver(configRepo, s.logger)
	targets := notification.NewRecipientResolver(recipientRepo, engine, s.logger)
	builder := notification.NewBuilder(s.library, eventRepo, s.publisher, s.logger)

	// 7. evaluators, in tick order
	coldChain := evaluator.NewColdChain(
		configResolver,
		datasource.NewSQLObservationSource(s.datasource, cfg.ColdChain.LatestObservationQuery, s.logger),
		stateStore,
		targets,
		builder,
		evaluator.Thresholds{
			High:   cfg.ColdChain.HighThreshold,
			Low:    cfg.ColdChain.LowThreshold,
			MaxAge: cfg.ColdChain.MaxAge,
		},
		s.logger,
	)
	scheduled := evaluator.NewScheduled(
		configResolver,
		configResolver,
		queryRepo,
		engine,
		targets,
		builder,
		s.logger,
	)

	s.scheduler = scheduler.New(s.logger, cfg.Scheduler.TickInterval, coldChain, scheduled)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.httpServer = &http.Server{
			Addr:         cfg.Metrics.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	return nil
}

// newStateStore picks the evaluator state backend
func newStateStore(cfg *config.Config, db *sql.DB, client *redis.Client, logger *zap.Logger) (store.StateStore, error) {
	switch cfg.State.Backend {
	case "postgres":
		return store.NewPostgresStateStore(db, logger), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis state backend needs a redis client")
		}
		return store.NewRedisStateStore(client, cfg.State.KeyPrefix), nil
	case "memory":
		logger.Warn("Using in-memory state store, entity state is lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// newPublisher picks where inserted events are announced
func newPublisher(ctx context.Context, cfg *config.Config, client *redis.Client) (publisher, error) {
	switch cfg.Queue.Backend {
	case "topic":
		p, err := queue.OpenTopicPublisher(ctx, cfg.Queue.TopicURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis queue backend needs a redis client")
		}
		return queue.NewStreamPublisher(client, cfg.Queue.Stream, cfg.Queue.MaxLen), nil
	case "none":
		return queue.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

// Start runs the scheduler, the metrics server and the template watcher until ctx is
// cancelled or one of them fails
func (s *NotifyService) Start(ctx context.Context) error {
	s.logger.Info("Starting notify service",
		zap.Duration("tick_interval", s.config.Scheduler.TickInterval),
		zap.String("state_backend", s.config.State.Backend),
		zap.String("queue_backend", s.config.Queue.Backend),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.scheduler.Run(ctx)
	})

	if s.config.Templates.Watch && s.config.Templates.Dir != "" {
		g.Go(func() error {
			return s.library.Watch(ctx)
		})
	}

	if s.httpServer != nil {
		g.Go(func() error {
			s.logger.Info("Metrics server listening", zap.String("addr", s.httpServer.Addr))
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Stop releases connections
func (s *NotifyService) Stop() error {
	s.logger.Info("Stopping notify service")

	if s.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.publisher.Close(ctx); err != nil {
			s.logger.Error("Failed to close publisher", zap.Error(err))
		}
	}

	if err := database.Close(s.datasource); err != nil {
		s.logger.Error("Failed to close datasource", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := commonredis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
