package app

import (
	"errors"
	"fmt"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	cryptoService "github.com/allisson/dormkeys/internal/crypto/service"
)

type cryptoComponents struct {
	aeadManager lazy[cryptoService.AEADManager]
	keyDeriver  lazy[cryptoService.KeyDeriver]
	kmsService  lazy[cryptoService.KMSService]
	kmsKeeper   lazy[cryptoDomain.KMSKeeper]
}

// AEADManager returns the AEAD cipher factory.
func (c *Container) AEADManager() cryptoService.AEADManager {
	m, _ := c.aeadManager.get(func() (cryptoService.AEADManager, error) {
		return cryptoService.NewAEADManager(), nil
	})
	return m
}

// KeyDeriver returns the PBKDF2-SHA512 deriver at the configured iteration count.
func (c *Container) KeyDeriver() cryptoService.KeyDeriver {
	kdf, _ := c.keyDeriver.get(func() (cryptoService.KeyDeriver, error) {
		return cryptoService.NewPBKDF2Deriver(c.config.KDFIterations), nil
	})
	return kdf
}

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	svc, _ := c.kmsService.get(func() (cryptoService.KMSService, error) {
		return cryptoService.NewKMSService(), nil
	})
	return svc
}

// KMSKeeper returns the keeper that wraps master key secrets at rest.
func (c *Container) KMSKeeper() (cryptoDomain.KMSKeeper, error) {
	return c.kmsKeeper.get(func() (cryptoDomain.KMSKeeper, error) {
		if c.config.KMSKeyURI == "" {
			return nil, errors.New("KMS_KEY_URI is required")
		}
		keeper, err := c.KMSService().OpenKeeper(c.ctx, c.config.KMSKeyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open kms keeper: %w", err)
		}
		return keeper, nil
	})
}

func (c *Container) closeCryptoComponents() []error {
	if keeper := c.kmsKeeper.val; keeper != nil {
		if err := keeper.Close(); err != nil {
			return []error{fmt.Errorf("kms keeper close: %w", err)}
		}
	}
	return nil
}
