package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	cryptoService "github.com/allisson/dormkeys/internal/crypto/service"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

const (
	maxUserIDLength   = 64
	maxDataTypeLength = 64
	maxDataIDLength   = 128

	// DefaultBatchConcurrency bounds DecryptBatch and ReEncrypt when no limit is configured.
	DefaultBatchConcurrency = 4
)

// DataEncryptionConfig holds the tunables of DataEncryptionUseCase.
type DataEncryptionConfig struct {
	// Algorithm seals new records; existing records open with their own algorithm.
	Algorithm        cryptoDomain.Algorithm
	BatchConcurrency int
}

type dataEncryptionUseCase struct {
	dataRepo    EncryptedDataRepository
	resolver    MasterKeyResolver
	aeadManager cryptoService.AEADManager
	kdf         cryptoService.KeyDeriver
	logger      *slog.Logger
	algorithm   cryptoDomain.Algorithm
	concurrency int
	now         func() time.Time
}

// NewDataEncryptionUseCase creates a DataEncryptionUseCase.
func NewDataEncryptionUseCase(
	dataRepo EncryptedDataRepository,
	resolver MasterKeyResolver,
	aeadManager cryptoService.AEADManager,
	kdf cryptoService.KeyDeriver,
	logger *slog.Logger,
	config DataEncryptionConfig,
) DataEncryptionUseCase {
	if config.Algorithm == "" {
		config.Algorithm = cryptoDomain.AESGCM
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = DefaultBatchConcurrency
	}
	return &dataEncryptionUseCase{
		dataRepo:    dataRepo,
		resolver:    resolver,
		aeadManager: aeadManager,
		kdf:         kdf,
		logger:      logger,
		algorithm:   config.Algorithm,
		concurrency: config.BatchConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *dataEncryptionUseCase) EncryptAndSave(
	ctx context.Context,
	input *domain.EncryptInput,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.EncryptOutput, error) {
	if err := validateLocation(input.UserID, input.DataType, input.DataID); err != nil {
		return nil, err
	}
	if err := requireKey(masterKey); err != nil {
		return nil, err
	}
	if err := input.Metadata.Validate(); err != nil {
		return nil, err
	}

	plaintext, err := canonicalJSON(input.Data)
	if err != nil {
		return nil, err
	}

	if err := d.authenticate(ctx, input.UserID, masterKey); err != nil {
		return nil, err
	}

	aad := domain.AAD(input.UserID, input.DataType, input.DataID)
	parts, err := d.seal(masterKey.Key, aad, plaintext)
	if err != nil {
		return nil, err
	}

	now := d.now()
	record := &domain.EncryptedData{
		ID:               uuid.Must(uuid.NewV7()),
		UserID:           input.UserID,
		DataType:         input.DataType,
		DataID:           input.DataID,
		Envelope:         domain.NewEnvelope(parts),
		DataHash:         hashHex(plaintext),
		MasterKeyVersion: masterKey.Version,
		Metadata:         input.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := d.dataRepo.Upsert(ctx, record); err != nil {
		return nil, err
	}

	d.logger.Debug("user data encrypted",
		slog.String("user_id", input.UserID),
		slog.String("data_type", input.DataType),
		slog.Int("master_key_version", masterKey.Version),
	)

	return &domain.EncryptOutput{DataHash: record.DataHash, MasterKeyVersion: masterKey.Version}, nil
}

func (d *dataEncryptionUseCase) DecryptAndRead(
	ctx context.Context,
	userID, dataType, dataID string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.DecryptedData, error) {
	if err := validateUserAndType(userID, dataType); err != nil {
		return nil, err
	}
	if err := requireKey(masterKey); err != nil {
		return nil, err
	}

	var (
		record *domain.EncryptedData
		err    error
	)
	if dataID == "" {
		record, err = d.dataRepo.GetLatest(ctx, userID, dataType)
	} else {
		if err := validateDataID(dataID); err != nil {
			return nil, err
		}
		record, err = d.dataRepo.Get(ctx, userID, dataType, dataID)
	}
	if err != nil {
		return nil, err
	}

	keys, err := d.resolveVersions(ctx, userID, masterKey, []*domain.EncryptedData{record})
	if err != nil {
		return nil, err
	}
	defer keys.zero()

	return d.openRecord(keys, record)
}

func (d *dataEncryptionUseCase) DecryptBatch(
	ctx context.Context,
	userID, dataType string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.BatchOutput, error) {
	if err := validateUserAndType(userID, dataType); err != nil {
		return nil, err
	}
	if err := requireKey(masterKey); err != nil {
		return nil, err
	}

	records, err := d.dataRepo.ListByType(ctx, userID, dataType)
	if err != nil {
		return nil, err
	}

	keys, err := d.resolveVersions(ctx, userID, masterKey, records)
	if err != nil {
		return nil, err
	}
	defer keys.zero()

	opened := make([]*domain.DecryptedData, len(records))
	failures := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, record := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return nil
			}
			opened[i], failures[i] = d.openRecord(keys, record)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &domain.BatchOutput{
		Items:  make([]*domain.DecryptedData, 0, len(records)),
		Failed: make([]domain.BatchFailure, 0),
	}
	for i, record := range records {
		if failures[i] != nil {
			d.logger.Warn("skipping record in batch decrypt",
				slog.String("user_id", userID),
				slog.String("data_type", dataType),
				slog.String("data_id", record.DataID),
				slog.Any("error", failures[i]),
			)
			out.Failed = append(out.Failed, domain.BatchFailure{DataID: record.DataID, Err: failures[i]})
			continue
		}
		out.Items = append(out.Items, opened[i])
	}
	return out, nil
}

func (d *dataEncryptionUseCase) Delete(ctx context.Context, userID, dataType, dataID string) (bool, error) {
	if err := validateLocation(userID, dataType, dataID); err != nil {
		return false, err
	}
	return d.dataRepo.Delete(ctx, userID, dataType, dataID)
}

func (d *dataEncryptionUseCase) GetStats(ctx context.Context, userID string) (map[string]int64, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return d.dataRepo.CountByType(ctx, userID)
}

func (d *dataEncryptionUseCase) ReEncrypt(
	ctx context.Context,
	userID string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.ReEncryptOutput, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := requireKey(masterKey); err != nil {
		return nil, err
	}

	records, err := d.dataRepo.ListBelowVersion(ctx, userID, masterKey.Version)
	if err != nil {
		return nil, err
	}

	keys, err := d.resolveVersions(ctx, userID, masterKey, records)
	if err != nil {
		return nil, err
	}
	defer keys.zero()

	var reencrypted, skipped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, record := range records {
		g.Go(func() error {
			err := d.reencryptRecord(ctx, keys, record, masterKey)
			switch {
			case err == nil:
				reencrypted.Add(1)
			case errors.Is(err, domain.ErrDataNotFound):
				// Rewritten or deleted since it was listed.
				skipped.Add(1)
			default:
				failed.Add(1)
				d.logger.Error("failed to re-encrypt record",
					slog.String("user_id", userID),
					slog.String("data_type", record.DataType),
					slog.String("data_id", record.DataID),
					slog.Int("master_key_version", record.MasterKeyVersion),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &domain.ReEncryptOutput{
		ReEncrypted: int(reencrypted.Load()),
		Skipped:     int(skipped.Load()),
		Failed:      int(failed.Load()),
	}
	d.logger.Info("user data re-encrypted",
		slog.String("user_id", userID),
		slog.Int("master_key_version", masterKey.Version),
		slog.Int("reencrypted", out.ReEncrypted),
		slog.Int("skipped", out.Skipped),
		slog.Int("failed", out.Failed),
	)
	return out, nil
}

func (d *dataEncryptionUseCase) reencryptRecord(
	ctx context.Context,
	keys *versionKeys,
	record *domain.EncryptedData,
	masterKey *keyDomain.MasterKeyMaterial,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opened, err := d.openRecord(keys, record)
	if err != nil {
		return err
	}

	aad := domain.AAD(record.UserID, record.DataType, record.DataID)
	parts, err := d.seal(masterKey.Key, aad, opened.Data)
	if err != nil {
		return err
	}

	updated := *record
	updated.Envelope = domain.NewEnvelope(parts)
	updated.DataHash = hashHex(opened.Data)
	updated.MasterKeyVersion = masterKey.Version
	updated.UpdatedAt = d.now()
	return d.dataRepo.ReplaceEnvelope(ctx, &updated, record.MasterKeyVersion)
}

// seal encrypts plaintext under a key derived from master and a fresh salt.
func (d *dataEncryptionUseCase) seal(master, aad, plaintext []byte) (domain.SealedParts, error) {
	salt := make([]byte, cryptoDomain.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return domain.SealedParts{}, apperrors.Wrap(err, "failed to generate salt")
	}

	key := d.kdf.Derive(master, salt, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(key)

	ciphertext, tag, iv, err := d.aeadManager.Seal(key, d.algorithm, plaintext, aad)
	if err != nil {
		return domain.SealedParts{}, err
	}

	return domain.SealedParts{
		Ciphertext: ciphertext,
		IV:         iv,
		Salt:       salt,
		Tag:        tag,
		Algorithm:  d.algorithm,
	}, nil
}

// open verifies the tag and decrypts. Every failure is ErrAuthenticationFailed.
func (d *dataEncryptionUseCase) open(master, aad []byte, parts domain.SealedParts) ([]byte, error) {
	key := d.kdf.Derive(master, parts.Salt, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(key)

	return d.aeadManager.Open(key, parts.Algorithm, parts.Ciphertext, parts.Tag, parts.IV, aad)
}

func (d *dataEncryptionUseCase) openRecord(
	keys *versionKeys,
	record *domain.EncryptedData,
) (*domain.DecryptedData, error) {
	master, err := keys.get(record.MasterKeyVersion)
	if err != nil {
		return nil, err
	}

	parts, err := record.Envelope.Decode()
	if err != nil {
		return nil, err
	}

	plaintext, err := d.open(master, domain.AAD(record.UserID, record.DataType, record.DataID), parts)
	if err != nil {
		return nil, err
	}

	if hashHex(plaintext) != record.DataHash {
		d.logger.Warn("integrity warning",
			slog.String("user_id", record.UserID),
			slog.String("data_type", record.DataType),
			slog.String("data_id", record.DataID),
			slog.Any("error", domain.ErrIntegrityWarning),
		)
	}

	return &domain.DecryptedData{
		DataID:           record.DataID,
		Data:             plaintext,
		Metadata:         record.Metadata,
		MasterKeyVersion: record.MasterKeyVersion,
		UpdatedAt:        record.UpdatedAt,
		DecryptedAt:      d.now(),
	}, nil
}

// versionKeys holds the master keys needed to open a set of records.
type versionKeys struct {
	current  *keyDomain.MasterKeyMaterial
	resolved map[int][]byte
	failed   map[int]error
}

// authenticate requires masterKey to be the user's active key. It returns
// ErrAuthenticationFailed for any other key, including a stale or unknown version.
func (d *dataEncryptionUseCase) authenticate(
	ctx context.Context,
	userID string,
	masterKey *keyDomain.MasterKeyMaterial,
) error {
	active, err := d.resolver.GetLatest(ctx, userID, keyDomain.DefaultKeyType)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(active.Key)

	keyMatch := subtle.ConstantTimeCompare(active.Key, masterKey.Key) == 1
	if !keyMatch || active.KeyID != masterKey.KeyID || active.Version != masterKey.Version {
		return cryptoDomain.ErrAuthenticationFailed
	}
	return nil
}

// resolveVersions unwraps each superseded version referenced by records once.
// Records sealed under masterKey's own version open with it directly. Any other
// version is served from the key chain only after masterKey authenticates as the
// active key. A version that cannot be resolved fails only the records sealed under it.
func (d *dataEncryptionUseCase) resolveVersions(
	ctx context.Context,
	userID string,
	current *keyDomain.MasterKeyMaterial,
	records []*domain.EncryptedData,
) (*versionKeys, error) {
	keys := &versionKeys{current: current, resolved: map[int][]byte{}, failed: map[int]error{}}
	authenticated := false
	for _, record := range records {
		version := record.MasterKeyVersion
		if version == current.Version {
			continue
		}
		if !authenticated {
			if err := d.authenticate(ctx, userID, current); err != nil {
				return nil, err
			}
			authenticated = true
		}
		if _, ok := keys.resolved[version]; ok {
			continue
		}
		if _, ok := keys.failed[version]; ok {
			continue
		}

		material, err := d.resolver.GetByVersion(ctx, userID, keyDomain.DefaultKeyType, version)
		if err != nil {
			keys.failed[version] = err
			continue
		}
		keys.resolved[version] = material.Key
	}
	return keys, nil
}

func (k *versionKeys) get(version int) ([]byte, error) {
	if version == k.current.Version {
		return k.current.Key, nil
	}
	if err, ok := k.failed[version]; ok {
		return nil, err
	}
	return k.resolved[version], nil
}

func (k *versionKeys) zero() {
	for _, key := range k.resolved {
		cryptoDomain.Zero(key)
	}
}

// canonicalJSON re-encodes a JSON document with object keys sorted and numbers
// kept verbatim, so equal documents seal and hash identically.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, domain.ErrInvalidPayload
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func requireKey(masterKey *keyDomain.MasterKeyMaterial) error {
	if masterKey == nil || len(masterKey.Key) == 0 {
		return keyDomain.ErrNoActiveKey
	}
	return nil
}

func validateUserID(userID string) error {
	if userID == "" || utf8.RuneCountInString(userID) > maxUserIDLength {
		return keyDomain.ErrInvalidUserID
	}
	return nil
}

func validateUserAndType(userID, dataType string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if dataType == "" || utf8.RuneCountInString(dataType) > maxDataTypeLength {
		return domain.ErrInvalidDataType
	}
	return nil
}

func validateDataID(dataID string) error {
	if dataID == "" || utf8.RuneCountInString(dataID) > maxDataIDLength {
		return domain.ErrInvalidDataID
	}
	return nil
}

func validateLocation(userID, dataType, dataID string) error {
	if err := validateUserAndType(userID, dataType); err != nil {
		return err
	}
	return validateDataID(dataID)
}
