package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	keyUseCase "github.com/allisson/dormkeys/internal/keymgmt/usecase"
)

// RunRotateMasterKey supersedes the active master key of a user with a new version
// and prints the new raw key once. Records sealed under the previous version stay
// readable; reencrypt-user-data moves them to the new key.
func RunRotateMasterKey(
	ctx context.Context,
	masterKeyUseCase keyUseCase.MasterKeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID, keyType, reason, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if reason == "" {
		return fmt.Errorf("--reason is required")
	}

	output, err := masterKeyUseCase.Rotate(ctx, &keyDomain.RotateKeyInput{
		UserID:  userID,
		KeyType: keyType,
		Reason:  reason,
		Request: cliRequestInfo(),
	})
	if err != nil {
		return fmt.Errorf("failed to rotate master key: %w", err)
	}
	defer cryptoDomain.Zero(output.RawKey)

	rawKey := base64.StdEncoding.EncodeToString(output.RawKey)

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"key_id":          output.KeyID.String(),
			"key_version":     output.KeyVersion,
			"previous_key_id": output.PreviousKeyID.String(),
			"raw_key":         rawKey,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Master key rotated for user %s\n\n", userID)
		_, _ = fmt.Fprintf(writer, "Key ID:          %s\n", output.KeyID)
		_, _ = fmt.Fprintf(writer, "Key Version:     %d\n", output.KeyVersion)
		_, _ = fmt.Fprintf(writer, "Previous Key ID: %s\n", output.PreviousKeyID)
		_, _ = fmt.Fprintf(writer, "Raw Key:         %s\n\n", rawKey)
		_, _ = fmt.Fprintf(writer, "WARNING: the raw key is shown only once. Store it securely.\n")
	}

	logger.Info("master key rotated",
		slog.String("user_id", userID),
		slog.String("key_id", output.KeyID.String()),
		slog.Int("key_version", output.KeyVersion),
		slog.String("reason", reason),
	)
	return nil
}

// RunRotateExpiredKeys rotates up to limit master keys whose expiry has passed.
// It fails when any rotation failed so schedulers can alert on it.
func RunRotateExpiredKeys(
	ctx context.Context,
	masterKeyUseCase keyUseCase.MasterKeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}

	output, err := masterKeyUseCase.RotateExpired(ctx, time.Now().UTC(), limit)
	if err != nil {
		return fmt.Errorf("failed to rotate expired keys: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"rotated": output.Rotated,
			"failed":  output.Failed,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Rotated: %d\n", output.Rotated)
		_, _ = fmt.Fprintf(writer, "Failed:  %d\n", output.Failed)
	}

	logger.Info("expired key sweep completed",
		slog.Int("rotated", output.Rotated),
		slog.Int("failed", output.Failed),
	)

	if output.Failed > 0 {
		return fmt.Errorf("%d expired key(s) could not be rotated", output.Failed)
	}
	return nil
}
