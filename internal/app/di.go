// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/allisson/dormkeys/internal/config"
	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/http"
	"github.com/allisson/dormkeys/internal/metrics"
	outboxRepository "github.com/allisson/dormkeys/internal/outbox/repository"
	outboxUsecase "github.com/allisson/dormkeys/internal/outbox/usecase"
)

// lazy memoizes the first result of a component constructor, error included.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(init func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.val, l.err = init()
	})
	return l.val, l.err
}

// Container holds all application dependencies and provides methods to access them.
// Components are created on first access and shared afterwards.
type Container struct {
	config *config.Config

	// ctx bounds background work owned by components; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	loggerInit sync.Once
	logger     *slog.Logger

	db              lazy[*sql.DB]
	txManager       lazy[database.TxManager]
	metricsProvider lazy[*metrics.Provider]
	businessMetrics lazy[metrics.BusinessMetrics]
	outboxRepo      lazy[outboxUsecase.OutboxEventRepository]
	natsConn        lazy[*nats.Conn]
	outboxUseCase   lazy[*outboxUsecase.OutboxUseCase]
	httpServer      lazy[*http.Server]
	metricsServer   lazy[*http.MetricsServer]

	cryptoComponents
	keyComponents
	dataComponents
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	ctx, cancel := context.WithCancel(context.Background())
	return &Container{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger at the configured level.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	return c.db.get(c.initDB)
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	return c.txManager.get(func() (database.TxManager, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
		}
		return database.NewTxManager(db), nil
	})
}

// MetricsProvider returns the Prometheus-backed meter provider, or nil when
// metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return c.metricsProvider.get(func() (*metrics.Provider, error) {
		if !c.config.MetricsEnabled {
			return nil, nil
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		return provider, nil
	})
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when
// metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return c.businessMetrics.get(func() (metrics.BusinessMetrics, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return metrics.NewNoOpBusinessMetrics(), nil
		}
		bm, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create business metrics: %w", err)
		}
		return bm, nil
	})
}

// OutboxRepository returns the outbox event repository for the configured driver.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	return c.outboxRepo.get(func() (outboxUsecase.OutboxEventRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
		case database.DriverMySQL:
			return outboxRepository.NewMySQLOutboxEventRepository(db), nil
		case database.DriverSQLite:
			return outboxRepository.NewSQLiteOutboxEventRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// NATSConn returns the broker connection, or nil when NATS_URL is empty.
func (c *Container) NATSConn() (*nats.Conn, error) {
	return c.natsConn.get(func() (*nats.Conn, error) {
		if c.config.NATSURL == "" {
			return nil, nil
		}
		return outboxUsecase.ConnectNATS(c.config.NATSURL, c.Logger())
	})
}

// OutboxUseCase returns the outbox relay.
func (c *Container) OutboxUseCase() (*outboxUsecase.OutboxUseCase, error) {
	return c.outboxUseCase.get(c.initOutboxUseCase)
}

// HTTPServer returns the API server with its router configured.
func (c *Container) HTTPServer() (*http.Server, error) {
	return c.httpServer.get(c.initHTTPServer)
}

// MetricsServer returns the Prometheus scrape server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	return c.metricsServer.get(func() (*http.MetricsServer, error) {
		provider, err := c.MetricsProvider()
		if err != nil || provider == nil {
			return nil, err
		}
		return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
	})
}

// Shutdown releases every initialized resource. The servers are expected to be
// stopped by their runner; Shutdown only stops background work and closes handles.
func (c *Container) Shutdown(ctx context.Context) error {
	c.cancel()

	var errs []error

	if conn := c.natsConn.val; conn != nil {
		if err := conn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}

	if provider := c.metricsProvider.val; provider != nil {
		if err := provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	c.closeKeyComponents()
	errs = append(errs, c.closeCryptoComponents()...)

	if db := c.db.val; db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initOutboxProcessor picks the relay target: NATS when configured, the log
// otherwise. Re-encryption on rotation runs in front of either.
func (c *Container) initOutboxProcessor() (outboxUsecase.EventProcessor, error) {
	conn, err := c.NATSConn()
	if err != nil {
		return nil, err
	}

	var processor outboxUsecase.EventProcessor
	if conn != nil {
		processor = outboxUsecase.NewNATSEventProcessor(conn, c.config.OutboxNATSSubjectPrefix)
	} else {
		processor = outboxUsecase.NewLoggingEventProcessor(c.Logger())
	}

	if c.config.OutboxReEncryptOnRotate {
		reEncrypter, err := c.RotationReEncrypter()
		if err != nil {
			return nil, fmt.Errorf("failed to get rotation re-encrypter for outbox: %w", err)
		}
		processor = outboxUsecase.NewReEncryptEventProcessor(processor, reEncrypter)
	}

	return processor, nil
}

func (c *Container) initOutboxUseCase() (*outboxUsecase.OutboxUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox use case: %w", err)
	}

	processor, err := c.initOutboxProcessor()
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox event processor: %w", err)
	}

	return outboxUsecase.NewOutboxUseCase(outboxUsecase.Config{
		Interval:   c.config.OutboxInterval,
		BatchSize:  c.config.OutboxBatchSize,
		MaxRetries: c.config.OutboxMaxRetries,
	}, txManager, outboxRepo, processor, c.Logger()), nil
}

func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	keyHandler, err := c.KeyHandler()
	if err != nil {
		return nil, err
	}
	deviceHandler, err := c.DeviceHandler()
	if err != nil {
		return nil, err
	}
	auditLogHandler, err := c.AuditLogHandler()
	if err != nil {
		return nil, err
	}
	dataHandler, err := c.DataHandler()
	if err != nil {
		return nil, err
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(c.ctx, c.config, http.Handlers{
		Keys:      keyHandler,
		Devices:   deviceHandler,
		AuditLogs: auditLogHandler,
		Data:      dataHandler,
	}, provider)

	return server, nil
}
