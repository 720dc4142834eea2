package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
	"github.com/ericfisherdev/pagescheduler/internal/logutil"
)

const (
	AppIDOption     = "fps_facebook_app_id"
	AppSecretOption = "fps_facebook_app_secret"
)

// AppCredentialSource resolves the Facebook app id and secret. Values saved
// through the settings endpoint take precedence over configured defaults.
type AppCredentialSource struct {
	options  driven.OptionStore
	fallback model.AppCredentials
	logger   *slog.Logger
}

// NewAppCredentialSource creates a source backed by options, falling back to
// the given configured credentials field by field.
func NewAppCredentialSource(options driven.OptionStore, fallback model.AppCredentials, logger *slog.Logger) *AppCredentialSource {
	return &AppCredentialSource{options: options, fallback: fallback, logger: logutil.NoopIfNil(logger)}
}

// Resolve returns the app credentials, or model.ErrConfigurationMissing when
// either value is unset.
func (s *AppCredentialSource) Resolve(ctx context.Context) (model.AppCredentials, error) {
	appID, err := s.options.GetOption(ctx, AppIDOption)
	if err != nil {
		return model.AppCredentials{}, fmt.Errorf("read app id: %w", err)
	}
	appSecret, err := s.options.GetOption(ctx, AppSecretOption)
	if err != nil {
		return model.AppCredentials{}, fmt.Errorf("read app secret: %w", err)
	}

	if appID == "" {
		appID = s.fallback.AppID
	}
	if appSecret == "" {
		appSecret = s.fallback.AppSecret
	}

	app := model.AppCredentials{AppID: appID, AppSecret: appSecret}
	if !app.Configured() {
		return model.AppCredentials{}, model.ErrConfigurationMissing
	}
	return app, nil
}

// Save stores new app credentials. Both values are required.
func (s *AppCredentialSource) Save(ctx context.Context, app model.AppCredentials) error {
	app.AppID = strings.TrimSpace(app.AppID)
	app.AppSecret = strings.TrimSpace(app.AppSecret)
	if !app.Configured() {
		return fmt.Errorf("%w: app id and app secret are required", model.ErrInvalidInput)
	}

	if err := s.options.SetOption(ctx, AppIDOption, app.AppID); err != nil {
		return fmt.Errorf("save app id: %w", err)
	}
	if err := s.options.SetOption(ctx, AppSecretOption, app.AppSecret); err != nil {
		return fmt.Errorf("save app secret: %w", err)
	}

	s.logger.Info("facebook app credentials updated", "app_id", logutil.Mask(app.AppID))
	return nil
}
