package commands

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

const localKeySize = 32

// RunCreateKMSKey prints a fresh local KMS key URI and audit signing key.
// base64key:// keys live in the environment, so they are meant for development;
// production deployments point KMS_KEY_URI at a cloud KMS (awskms://, gcpkms://,
// azurekeyvault://, hashivault://).
func RunCreateKMSKey(random io.Reader, writer io.Writer) error {
	kmsKey := make([]byte, localKeySize)
	defer cryptoDomain.Zero(kmsKey)
	if _, err := io.ReadFull(random, kmsKey); err != nil {
		return fmt.Errorf("failed to generate kms key: %w", err)
	}

	signingKey := make([]byte, localKeySize)
	defer cryptoDomain.Zero(signingKey)
	if _, err := io.ReadFull(random, signingKey); err != nil {
		return fmt.Errorf("failed to generate audit signing key: %w", err)
	}

	_, _ = fmt.Fprintln(writer, "# Local key configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"base64key://%s\"\n", base64.URLEncoding.EncodeToString(kmsKey))
	_, _ = fmt.Fprintf(writer, "AUDIT_SIGNING_KEY=\"%s\"\n", base64.StdEncoding.EncodeToString(signingKey))
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "# Never use base64key:// in production. Use a cloud KMS key URI instead.")
	return nil
}

// DefaultRandom is the entropy source of RunCreateKMSKey outside tests.
var DefaultRandom io.Reader = rand.Reader
