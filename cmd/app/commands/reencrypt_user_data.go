package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	dataUseCase "github.com/allisson/dormkeys/internal/userdata/usecase"
)

// RunReEncryptUserData moves every record of a user that is still sealed under an
// older master key version to the active key.
func RunReEncryptUserData(
	ctx context.Context,
	keys dataUseCase.MasterKeyResolver,
	data dataUseCase.DataEncryptionUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	material, err := keys.GetLatest(ctx, userID, keyDomain.DefaultKeyType)
	if err != nil {
		return fmt.Errorf("failed to load active master key: %w", err)
	}
	defer cryptoDomain.Zero(material.Key)

	output, err := data.ReEncrypt(ctx, userID, material)
	if err != nil {
		return fmt.Errorf("failed to re-encrypt user data: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"user_id":     userID,
			"key_version": material.Version,
			"reencrypted": output.ReEncrypted,
			"skipped":     output.Skipped,
			"failed":      output.Failed,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Re-encrypted records of user %s under key version %d\n\n", userID, material.Version)
		_, _ = fmt.Fprintf(writer, "Re-encrypted: %d\n", output.ReEncrypted)
		_, _ = fmt.Fprintf(writer, "Skipped:      %d\n", output.Skipped)
		_, _ = fmt.Fprintf(writer, "Failed:       %d\n", output.Failed)
	}

	logger.Info("user data re-encrypted",
		slog.String("user_id", userID),
		slog.Int("key_version", material.Version),
		slog.Int("reencrypted", output.ReEncrypted),
		slog.Int("skipped", output.Skipped),
		slog.Int("failed", output.Failed),
	)

	if output.Failed > 0 {
		return fmt.Errorf("%d record(s) could not be re-encrypted", output.Failed)
	}
	return nil
}
