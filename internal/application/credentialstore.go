package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
	"github.com/ericfisherdev/pagescheduler/internal/logutil"
	"github.com/ericfisherdev/pagescheduler/internal/metrics"
)

// UserTokenAttribute is the user attribute holding the encrypted user token.
const UserTokenAttribute = "fps_facebook_token"

// CredentialStore persists user and page credentials. Payloads are always
// wrapped by the codec before they reach a backend, and expired credentials
// are reported as absent at read time without deleting their rows.
type CredentialStore struct {
	codec    driven.TokenCodec
	backends map[model.CredentialKind]driven.CredentialBackend
	pages    driven.ListableCredentialBackend
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewCredentialStore creates a store that keeps user tokens in the user
// attribute store and page tokens in the pages backend.
func NewCredentialStore(
	codec driven.TokenCodec,
	userAttrs driven.UserAttributeStore,
	pages driven.ListableCredentialBackend,
	clock clockwork.Clock,
	logger *slog.Logger,
) *CredentialStore {
	return &CredentialStore{
		codec: codec,
		backends: map[model.CredentialKind]driven.CredentialBackend{
			model.CredentialKindUser: NewUserTokenBackend(userAttrs),
			model.CredentialKindPage: pages,
		},
		pages:  pages,
		clock:  clock,
		logger: logutil.NoopIfNil(logger),
	}
}

// Confidential reports whether stored payloads are actually encrypted.
func (s *CredentialStore) Confidential() bool {
	return s.codec.Confidential()
}

// StoreUserToken encrypts and stores the user's credential.
func (s *CredentialStore) StoreUserToken(ctx context.Context, userID int64, cred model.Credential) error {
	return s.store(ctx, model.CredentialKindUser, userSubject(userID), cred)
}

// GetUserToken returns the user's credential, model.ErrCredentialAbsent when
// none is usable, or model.ErrCredentialExpired when it has expired.
func (s *CredentialStore) GetUserToken(ctx context.Context, userID int64) (*model.Credential, error) {
	return s.get(ctx, model.CredentialKindUser, userSubject(userID))
}

// RemoveUserToken deletes the user's credential.
func (s *CredentialStore) RemoveUserToken(ctx context.Context, userID int64) error {
	return s.remove(ctx, model.CredentialKindUser, userSubject(userID))
}

// StorePageToken encrypts and upserts the page's credential.
func (s *CredentialStore) StorePageToken(ctx context.Context, pageID string, cred model.Credential) error {
	cred.PageID = pageID
	return s.store(ctx, model.CredentialKindPage, pageID, cred)
}

// GetPageToken returns the page's credential with the same absent/expired
// semantics as GetUserToken.
func (s *CredentialStore) GetPageToken(ctx context.Context, pageID string) (*model.Credential, error) {
	return s.get(ctx, model.CredentialKindPage, pageID)
}

// RemovePageToken deletes the page's credential.
func (s *CredentialStore) RemovePageToken(ctx context.Context, pageID string) error {
	return s.remove(ctx, model.CredentialKindPage, pageID)
}

// ListPageCredentials decodes every stored page row, including expired ones.
// Rows that cannot be decrypted or parsed are returned by subject id in
// unreadable instead of failing the listing.
func (s *CredentialStore) ListPageCredentials(ctx context.Context) (creds []model.Credential, unreadable []string, err error) {
	rows, err := s.pages.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list page credentials: %w", err)
	}

	for _, row := range rows {
		cred, err := s.decode(model.CredentialKindPage, row.SubjectID, row.Blob)
		if err != nil {
			s.logger.Warn("skipping unreadable page credential", "page_id", row.SubjectID, "error", err)
			unreadable = append(unreadable, row.SubjectID)
			continue
		}
		creds = append(creds, *cred)
	}

	return creds, unreadable, nil
}

func (s *CredentialStore) store(ctx context.Context, kind model.CredentialKind, subjectID string, cred model.Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("store %s credential %s: %w: access token is empty", kind, subjectID, model.ErrInvalidInput)
	}
	if cred.TokenType == "" {
		cred.TokenType = model.DefaultTokenType
	}
	if cred.CreatedAt == 0 {
		cred.CreatedAt = s.clock.Now().Unix()
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal %s credential: %w", kind, err)
	}

	blob, err := s.codec.Encrypt(string(payload))
	if err != nil {
		s.logger.Error("failed to encrypt credential", "kind", kind, "subject", subjectID, "error", err)
		return fmt.Errorf("encrypt %s credential %s: %w", kind, subjectID, err)
	}

	if err := s.backends[kind].Put(ctx, subjectID, blob); err != nil {
		s.logger.Error("failed to store credential", "kind", kind, "subject", subjectID, "error", err)
		return fmt.Errorf("store %s credential %s: %w", kind, subjectID, err)
	}

	s.logger.Info("stored credential", "kind", kind, "subject", subjectID, "expires_at", cred.ExpiresAt)
	return nil
}

func (s *CredentialStore) get(ctx context.Context, kind model.CredentialKind, subjectID string) (*model.Credential, error) {
	blob, err := s.backends[kind].Get(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get %s credential %s: %w", kind, subjectID, err)
	}
	if blob == "" {
		metrics.CredentialReadsTotal.WithLabelValues(string(kind), "absent").Inc()
		return nil, fmt.Errorf("%s credential %s: %w", kind, subjectID, model.ErrCredentialAbsent)
	}

	cred, err := s.decode(kind, subjectID, blob)
	if err != nil {
		metrics.CredentialReadsTotal.WithLabelValues(string(kind), "unreadable").Inc()
		s.logger.Warn("stored credential is unreadable", "kind", kind, "subject", subjectID, "error", err)
		return nil, fmt.Errorf("%s credential %s: %w", kind, subjectID, errors.Join(model.ErrCredentialAbsent, err))
	}

	if cred.IsExpired(s.clock.Now()) {
		metrics.CredentialReadsTotal.WithLabelValues(string(kind), "expired").Inc()
		s.logger.Info("stored credential has expired", "kind", kind, "subject", subjectID, "expires_at", cred.ExpiresAt)
		return nil, fmt.Errorf("%s credential %s: %w", kind, subjectID, model.ErrCredentialExpired)
	}

	metrics.CredentialReadsTotal.WithLabelValues(string(kind), "found").Inc()
	return cred, nil
}

func (s *CredentialStore) remove(ctx context.Context, kind model.CredentialKind, subjectID string) error {
	if err := s.backends[kind].Delete(ctx, subjectID); err != nil {
		s.logger.Error("failed to remove credential", "kind", kind, "subject", subjectID, "error", err)
		return fmt.Errorf("remove %s credential %s: %w", kind, subjectID, err)
	}

	s.logger.Info("removed credential", "kind", kind, "subject", subjectID)
	return nil
}

// decode decrypts and parses a stored blob. A payload without an access
// token is treated as unparseable.
func (s *CredentialStore) decode(kind model.CredentialKind, subjectID, blob string) (*model.Credential, error) {
	plain, err := s.codec.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	var cred model.Credential
	if err := json.Unmarshal([]byte(plain), &cred); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, errors.New("payload has no access_token")
	}

	cred.Kind = kind
	cred.SubjectID = subjectID
	return &cred, nil
}

func userSubject(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Compile-time interface satisfaction check.
var _ driven.CredentialBackend = (*UserTokenBackend)(nil)

// UserTokenBackend adapts the per-user attribute store to the
// CredentialBackend port. Subjects are decimal user ids.
type UserTokenBackend struct {
	attrs driven.UserAttributeStore
}

// NewUserTokenBackend wraps attrs as a credential backend.
func NewUserTokenBackend(attrs driven.UserAttributeStore) *UserTokenBackend {
	return &UserTokenBackend{attrs: attrs}
}

func (b *UserTokenBackend) Put(ctx context.Context, subjectID, blob string) error {
	userID, err := parseUserSubject(subjectID)
	if err != nil {
		return err
	}
	return b.attrs.SetAttribute(ctx, userID, UserTokenAttribute, blob)
}

func (b *UserTokenBackend) Get(ctx context.Context, subjectID string) (string, error) {
	userID, err := parseUserSubject(subjectID)
	if err != nil {
		return "", err
	}
	return b.attrs.GetAttribute(ctx, userID, UserTokenAttribute)
}

func (b *UserTokenBackend) Delete(ctx context.Context, subjectID string) error {
	userID, err := parseUserSubject(subjectID)
	if err != nil {
		return err
	}
	return b.attrs.DeleteAttribute(ctx, userID, UserTokenAttribute)
}

func parseUserSubject(subjectID string) (int64, error) {
	userID, err := strconv.ParseInt(subjectID, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("user subject %q: %w: not a positive user id", subjectID, model.ErrInvalidInput)
	}
	return userID, nil
}
