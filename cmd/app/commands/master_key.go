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

// RunGenerateMasterKey provisions the first master key of a user and prints the raw
// key once. The raw key is wiped from memory after it is written.
//
// Fails with a conflict when the user already has an active key; use
// rotate-master-key instead.
func RunGenerateMasterKey(
	ctx context.Context,
	masterKeyUseCase keyUseCase.MasterKeyUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID, keyType, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	output, err := masterKeyUseCase.Generate(ctx, &keyDomain.GenerateKeyInput{
		UserID:  userID,
		KeyType: keyType,
		Request: cliRequestInfo(),
	})
	if err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer cryptoDomain.Zero(output.RawKey)

	rawKey := base64.StdEncoding.EncodeToString(output.RawKey)

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"key_id":      output.KeyID.String(),
			"key_version": output.KeyVersion,
			"raw_key":     rawKey,
			"created_at":  output.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Master key generated for user %s\n\n", userID)
		_, _ = fmt.Fprintf(writer, "Key ID:      %s\n", output.KeyID)
		_, _ = fmt.Fprintf(writer, "Key Version: %d\n", output.KeyVersion)
		_, _ = fmt.Fprintf(writer, "Raw Key:     %s\n\n", rawKey)
		_, _ = fmt.Fprintf(writer, "WARNING: the raw key is shown only once. Store it securely.\n")
	}

	logger.Info("master key generated",
		slog.String("user_id", userID),
		slog.String("key_id", output.KeyID.String()),
		slog.Int("key_version", output.KeyVersion),
	)
	return nil
}

// cliRequestInfo marks audit rows written by operator commands.
func cliRequestInfo() keyDomain.RequestInfo {
	return keyDomain.RequestInfo{UserAgent: "dormkeys-cli"}
}
