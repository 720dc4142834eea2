package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

func TestAppCredentialSource_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		options  map[string]string
		fallback model.AppCredentials
		want     model.AppCredentials
		wantErr  error
	}{
		{
			name:     "fallback only",
			fallback: model.AppCredentials{AppID: "cfg-id", AppSecret: "cfg-secret"},
			want:     model.AppCredentials{AppID: "cfg-id", AppSecret: "cfg-secret"},
		},
		{
			name:     "options override fallback",
			options:  map[string]string{application.AppIDOption: "opt-id", application.AppSecretOption: "opt-secret"},
			fallback: model.AppCredentials{AppID: "cfg-id", AppSecret: "cfg-secret"},
			want:     model.AppCredentials{AppID: "opt-id", AppSecret: "opt-secret"},
		},
		{
			name:     "mixed sources",
			options:  map[string]string{application.AppIDOption: "opt-id"},
			fallback: model.AppCredentials{AppSecret: "cfg-secret"},
			want:     model.AppCredentials{AppID: "opt-id", AppSecret: "cfg-secret"},
		},
		{
			name:     "secret missing",
			fallback: model.AppCredentials{AppID: "cfg-id"},
			wantErr:  model.ErrConfigurationMissing,
		},
		{
			name:    "nothing configured",
			wantErr: model.ErrConfigurationMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			options := newMemOptions()
			for k, v := range tt.options {
				require.NoError(t, options.SetOption(ctx, k, v))
			}

			got, err := application.NewAppCredentialSource(options, tt.fallback, nil).Resolve(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppCredentialSource_Save(t *testing.T) {
	ctx := context.Background()
	options := newMemOptions()
	src := application.NewAppCredentialSource(options, model.AppCredentials{}, nil)

	err := src.Save(ctx, model.AppCredentials{AppID: "  id  "})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	require.NoError(t, src.Save(ctx, model.AppCredentials{AppID: " id ", AppSecret: "secret"}))

	got, err := src.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AppCredentials{AppID: "id", AppSecret: "secret"}, got)
}
