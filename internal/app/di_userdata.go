package app

import (
	"fmt"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	"github.com/allisson/dormkeys/internal/database"
	dataHTTP "github.com/allisson/dormkeys/internal/userdata/http"
	dataRepository "github.com/allisson/dormkeys/internal/userdata/repository"
	dataUseCase "github.com/allisson/dormkeys/internal/userdata/usecase"
)

type dataComponents struct {
	encryptedDataRepo lazy[dataUseCase.EncryptedDataRepository]
	dataUseCase       lazy[dataUseCase.DataEncryptionUseCase]
	reEncrypter       lazy[*dataUseCase.RotationReEncrypter]
	dataHandler       lazy[*dataHTTP.DataHandler]
}

// EncryptedDataRepository returns the encrypted data repository for the configured driver.
func (c *Container) EncryptedDataRepository() (dataUseCase.EncryptedDataRepository, error) {
	return c.encryptedDataRepo.get(func() (dataUseCase.EncryptedDataRepository, error) {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for encrypted data repository: %w", err)
		}

		switch c.config.DBDriver {
		case database.DriverPostgres:
			return dataRepository.NewPostgreSQLEncryptedDataRepository(db), nil
		case database.DriverMySQL:
			return dataRepository.NewMySQLEncryptedDataRepository(db), nil
		case database.DriverSQLite:
			return dataRepository.NewSQLiteEncryptedDataRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// DataEncryptionUseCase returns the user data use case, wrapped with metrics.
func (c *Container) DataEncryptionUseCase() (dataUseCase.DataEncryptionUseCase, error) {
	return c.dataUseCase.get(c.initDataEncryptionUseCase)
}

// RotationReEncrypter returns the hook that moves records to a freshly rotated key.
func (c *Container) RotationReEncrypter() (*dataUseCase.RotationReEncrypter, error) {
	return c.reEncrypter.get(func() (*dataUseCase.RotationReEncrypter, error) {
		keys, err := c.MasterKeyUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get master key use case for re-encrypter: %w", err)
		}
		data, err := c.DataEncryptionUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get data encryption use case for re-encrypter: %w", err)
		}
		return dataUseCase.NewRotationReEncrypter(keys, data), nil
	})
}

// DataHandler returns the user data HTTP handler.
func (c *Container) DataHandler() (*dataHTTP.DataHandler, error) {
	return c.dataHandler.get(func() (*dataHTTP.DataHandler, error) {
		data, err := c.DataEncryptionUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get data encryption use case for data handler: %w", err)
		}
		keys, err := c.MasterKeyUseCase()
		if err != nil {
			return nil, fmt.Errorf("failed to get master key use case for data handler: %w", err)
		}
		return dataHTTP.NewDataHandler(data, keys, c.Logger()), nil
	})
}

func (c *Container) initDataEncryptionUseCase() (dataUseCase.DataEncryptionUseCase, error) {
	repo, err := c.EncryptedDataRepository()
	if err != nil {
		return nil, err
	}

	keys, err := c.MasterKeyUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key use case for data encryption use case: %w", err)
	}

	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.DataEncryptionAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid data encryption algorithm %q: %w", c.config.DataEncryptionAlgorithm, err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for data encryption use case: %w", err)
	}

	baseUseCase := dataUseCase.NewDataEncryptionUseCase(
		repo,
		keys,
		c.AEADManager(),
		c.KeyDeriver(),
		c.Logger(),
		dataUseCase.DataEncryptionConfig{
			Algorithm:        algorithm,
			BatchConcurrency: c.config.DataBatchConcurrency,
		},
	)
	return dataUseCase.NewDataEncryptionUseCaseWithMetrics(baseUseCase, businessMetrics), nil
}
