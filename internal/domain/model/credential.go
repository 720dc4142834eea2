package model

import "time"

// CredentialKind selects which backend a credential is persisted in.
type CredentialKind string

const (
	CredentialKindUser CredentialKind = "user"
	CredentialKindPage CredentialKind = "page"
)

// DefaultTokenType is used when the token endpoint omits token_type.
const DefaultTokenType = "bearer"

// Credential is an access token plus its metadata. The JSON tags define the
// payload that is encrypted and persisted; SubjectID and Kind are carried by
// the storage key and never serialized.
//
// CreatedAt and ExpiresAt are Unix seconds. ExpiresAt == 0 means the token
// never expires, which is how Facebook issues page tokens.
type Credential struct {
	Kind      CredentialKind `json:"-"`
	SubjectID string         `json:"-"`

	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"` // Informational; may be stale.
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`

	// Set only on page credentials.
	PageID   string `json:"page_id,omitempty"`
	PageName string `json:"page_name,omitempty"`
}

// NeverExpires reports whether the credential has no expiry.
func (c Credential) NeverExpires() bool {
	return c.ExpiresAt == 0
}

// IsExpired reports whether the credential has an expiry at or before now.
func (c Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt > 0 && c.ExpiresAt <= now.Unix()
}

// ExpiresWithin reports whether the credential has an expiry and fewer than
// window remain until it. Already-expired credentials are within any window.
func (c Credential) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt <= 0 {
		return false
	}
	return c.ExpiresAt-now.Unix() < int64(window/time.Second)
}

// StoredCredential is a raw persisted row: the encrypted payload keyed by
// subject, as returned by a CredentialBackend listing.
type StoredCredential struct {
	SubjectID string
	Blob      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
