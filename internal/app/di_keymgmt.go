package app

import (
	"encoding/base64"
	"fmt"

	"github.com/allisson/dormkeys/internal/database"
	keyHTTP "github.com/allisson/dormkeys/internal/keymgmt/http"
	keyRepository "github.com/allisson/dormkeys/internal/keymgmt/repository"
	keyService "github.com/allisson/dormkeys/internal/keymgmt/service"
	keyUseCase "github.com/allisson/dormkeys/internal/keymgmt/usecase"
)

type keyComponents struct {
	masterKeyRepo   lazy[keyUseCase.MasterKeyRepository]
	bindingRepo     lazy[keyUseCase.HardwareBindingRepository]
	auditLogRepo    lazy[keyUseCase.AuditLogRepository]
	keyVerifier     lazy[keyService.KeyVerifier]
	auditSigner     lazy[keyService.AuditSigner]
	auditLogUseCase lazy[keyUseCase.AuditLogUseCase]
	masterKeyUC     lazy[keyUseCase.MasterKeyUseCase]
	deviceUseCase   lazy[keyUseCase.DeviceUseCase]
	keyHandler      lazy[*keyHTTP.KeyHandler]
	deviceHandler   lazy[*keyHTTP.DeviceHandler]
	auditLogHandler lazy[*keyHTTP.AuditLogHandler]
}

// MasterKeyRepository returns the master key repository for the configured driver.
func (c *Container) MasterKeyRepository() (keyUseCase.MasterKeyRepository, error) {
	return c.masterKeyRepo.get(func() (keyUseCase.MasterKeyRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for master key repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return keyRepository.NewPostgreSQLMasterKeyRepository(db), nil
		case database.DriverMySQL:
			return keyRepository.NewMySQLMasterKeyRepository(db), nil
		case database.DriverSQLite:
			return keyRepository.NewSQLiteMasterKeyRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// HardwareBindingRepository returns the device binding repository for the configured driver.
func (c *Container) HardwareBindingRepository() (keyUseCase.HardwareBindingRepository, error) {
	return c.bindingRepo.get(func() (keyUseCase.HardwareBindingRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for hardware binding repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return keyRepository.NewPostgreSQLHardwareBindingRepository(db), nil
		case database.DriverMySQL:
			return keyRepository.NewMySQLHardwareBindingRepository(db), nil
		case database.DriverSQLite:
			return keyRepository.NewSQLiteHardwareBindingRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// AuditLogRepository returns the audit log repository for the configured driver.
func (c *Container) AuditLogRepository() (keyUseCase.AuditLogRepository, error) {
	return c.auditLogRepo.get(func() (keyUseCase.AuditLogRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for audit log repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return keyRepository.NewPostgreSQLAuditLogRepository(db), nil
		case database.DriverMySQL:
			return keyRepository.NewMySQLAuditLogRepository(db), nil
		case database.DriverSQLite:
			return keyRepository.NewSQLiteAuditLogRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// KeyVerifier returns the master key verifier.
func (c *Container) KeyVerifier() keyService.KeyVerifier {
	v, _ := c.keyVerifier.get(func() (keyService.KeyVerifier, error) {
		return keyService.NewKeyVerifier(c.KeyDeriver()), nil
	})
	return v
}

// AuditSigner returns the audit row signer, or nil when AUDIT_SIGNING_KEY is unset.
func (c *Container) AuditSigner() (keyService.AuditSigner, error) {
	return c.auditSigner.get(func() (keyService.AuditSigner, error) {
		if c.config.AuditSigningKey == "" {
			c.Logger().Warn("AUDIT_SIGNING_KEY is not set, audit logs will be stored unsigned")
			return nil, nil
		}

		secret, err := base64.StdEncoding.DecodeString(c.config.AuditSigningKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audit signing key: %w", err)
		}

		signer, err := keyService.NewAuditSigner(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit signer: %w", err)
		}
		return signer, nil
	})
}

// AuditLogUseCase returns the audit log use case.
func (c *Container) AuditLogUseCase() (keyUseCase.AuditLogUseCase, error) {
	return c.auditLogUseCase.get(func() (keyUseCase.AuditLogUseCase, error) {
		repo, err := c.AuditLogRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get audit log repository for audit log use case: %w", err)
		}

		signer, err := c.AuditSigner()
		if err != nil {
			return nil, err
		}

		return keyUseCase.NewAuditLogUseCase(repo, signer, c.Logger()), nil
	})
}

// MasterKeyUseCase returns the master key use case, wrapped with metrics.
func (c *Container) MasterKeyUseCase() (keyUseCase.MasterKeyUseCase, error) {
	return c.masterKeyUC.get(c.initMasterKeyUseCase)
}

// DeviceUseCase returns the device use case, wrapped with metrics.
func (c *Container) DeviceUseCase() (keyUseCase.DeviceUseCase, error) {
	return c.deviceUseCase.get(c.initDeviceUseCase)
}

// KeyHandler returns the master key HTTP handler.
func (c *Container) KeyHandler() (*keyHTTP.KeyHandler, error) {
	return c.keyHandler.get(func() (*keyHTTP.KeyHandler, error) {
		uc, err := c.MasterKeyUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get master key use case for key handler: %w", err)
		}
		return keyHTTP.NewKeyHandler(uc, c.Logger()), nil
	})
}

// DeviceHandler returns the device HTTP handler.
func (c *Container) DeviceHandler() (*keyHTTP.DeviceHandler, error) {
	return c.deviceHandler.get(func() (*keyHTTP.DeviceHandler, error) {
		uc, err := c.DeviceUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get device use case for device handler: %w", err)
		}
		return keyHTTP.NewDeviceHandler(uc, c.Logger()), nil
	})
}

// AuditLogHandler returns the audit log HTTP handler.
func (c *Container) AuditLogHandler() (*keyHTTP.AuditLogHandler, error) {
	return c.auditLogHandler.get(func() (*keyHTTP.AuditLogHandler, error) {
		uc, err := c.AuditLogUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get audit log use case for audit log handler: %w", err)
		}
		return keyHTTP.NewAuditLogHandler(uc, c.Logger()), nil
	})
}

func (c *Container) initMasterKeyUseCase() (keyUseCase.MasterKeyUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for master key use case: %w", err)
	}

	keyRepo, err := c.MasterKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key repository for master key use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for master key use case: %w", err)
	}

	keeper, err := c.KMSKeeper()
	if err != nil {
		return nil, err
	}

	auditLog, err := c.AuditLogUseCase()
	if err != nil {
		return nil, err
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for master key use case: %w", err)
	}

	baseUseCase := keyUseCase.NewMasterKeyUseCase(
		txManager,
		keyRepo,
		outboxRepo,
		c.KeyVerifier(),
		keeper,
		auditLog,
		c.Logger(),
		keyUseCase.MasterKeyConfig{TTL: c.config.MasterKeyTTL},
	)
	return keyUseCase.NewMasterKeyUseCaseWithMetrics(baseUseCase, businessMetrics), nil
}

func (c *Container) initDeviceUseCase() (keyUseCase.DeviceUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for device use case: %w", err)
	}

	bindingRepo, err := c.HardwareBindingRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get hardware binding repository for device use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for device use case: %w", err)
	}

	auditLog, err := c.AuditLogUseCase()
	if err != nil {
		return nil, err
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for device use case: %w", err)
	}

	baseUseCase := keyUseCase.NewDeviceUseCase(txManager, bindingRepo, outboxRepo, auditLog, c.Logger())
	return keyUseCase.NewDeviceUseCaseWithMetrics(baseUseCase, businessMetrics), nil
}

func (c *Container) closeKeyComponents() {
	if signer := c.auditSigner.val; signer != nil {
		signer.Close()
	}
}
