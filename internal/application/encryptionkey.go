package application

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
)

const (
	// EncryptionKeyOption is the option holding the generated encryption key.
	EncryptionKeyOption = "fps_encryption_key"

	encryptionKeyLength  = 32
	encryptionKeyCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// EnsureEncryptionKey returns the process-wide token encryption key. A
// non-empty override is returned unchanged. Otherwise the stored key is
// returned, generating and persisting one on first use. An existing key is
// never replaced.
func EnsureEncryptionKey(ctx context.Context, options driven.OptionStore, override string) ([]byte, error) {
	if override != "" {
		return []byte(override), nil
	}

	key, err := options.GetOption(ctx, EncryptionKeyOption)
	if err != nil {
		return nil, fmt.Errorf("read encryption key: %w", err)
	}
	if key != "" {
		return []byte(key), nil
	}

	generated, err := generateKey(encryptionKeyLength)
	if err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}

	// Another process may have won the race; its key is authoritative.
	if _, err := options.AddOption(ctx, EncryptionKeyOption, generated); err != nil {
		return nil, fmt.Errorf("persist encryption key: %w", err)
	}

	key, err = options.GetOption(ctx, EncryptionKeyOption)
	if err != nil {
		return nil, fmt.Errorf("re-read encryption key: %w", err)
	}
	return []byte(key), nil
}

func generateKey(n int) (string, error) {
	limit := big.NewInt(int64(len(encryptionKeyCharset)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = encryptionKeyCharset[idx.Int64()]
	}
	return string(out), nil
}
