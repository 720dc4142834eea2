package driven

import "context"

// UserAttributeStore is a per-user key-value attribute store (the host's
// user meta). Values are opaque strings.
type UserAttributeStore interface {
	// GetAttribute returns the value, or ("", nil) if it is not set.
	GetAttribute(ctx context.Context, userID int64, key string) (string, error)
	SetAttribute(ctx context.Context, userID int64, key, value string) error
	DeleteAttribute(ctx context.Context, userID int64, key string) error
}

// OptionStore is the process-wide named configuration store.
type OptionStore interface {
	// GetOption returns the value, or ("", nil) if the option is not set.
	GetOption(ctx context.Context, name string) (string, error)
	SetOption(ctx context.Context, name, value string) error

	// AddOption sets the option only when it does not exist yet and reports
	// whether it was written.
	AddOption(ctx context.Context, name, value string) (bool, error)
	DeleteOption(ctx context.Context, name string) error
}
