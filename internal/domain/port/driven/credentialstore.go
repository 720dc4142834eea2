package driven

import (
	"context"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

// CredentialBackend is the driven port for persisting encrypted credential
// payloads keyed by subject. User and page credentials live in different
// backends behind this one interface; the application layer owns encryption
// and expiry, so implementations only move opaque blobs.
type CredentialBackend interface {
	// Put stores or replaces the blob for subjectID. At most one row exists
	// per subject.
	Put(ctx context.Context, subjectID, blob string) error

	// Get returns the blob for subjectID, or ("", nil) if none is stored.
	Get(ctx context.Context, subjectID string) (string, error)

	// Delete removes the blob for subjectID. Deleting a missing subject is
	// not an error.
	Delete(ctx context.Context, subjectID string) error
}

// ListableCredentialBackend is a CredentialBackend that can enumerate its
// rows. The refresh sweep needs this for page credentials only.
type ListableCredentialBackend interface {
	CredentialBackend

	// List returns every stored row.
	List(ctx context.Context) ([]model.StoredCredential, error)
}

// TokenCodec wraps credential payloads before persistence.
type TokenCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(opaque string) (string, error)

	// Confidential reports whether Encrypt actually encrypts. False means
	// the weak base64 fallback is active.
	Confidential() bool
}
