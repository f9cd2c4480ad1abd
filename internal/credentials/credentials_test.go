package credentials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/config"
)

type fakeSecrets struct {
	value *string
	err   error
	calls []string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls = append(f.calls, aws.ToString(in.SecretId))
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func awsConfig() *config.Config {
	cfg := config.Default()
	cfg.Ledger.TenantID = "tenant-from-file"
	cfg.Credentials.Source = config.SourceAWS
	cfg.Credentials.AWSSecretID = "ledgersync/prod"
	return &cfg
}

func TestResolve_Static(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.TenantID = "tenant-1"
	cfg.Credentials.AccessToken = "tok"

	got, err := Resolve(context.Background(), &cfg, nil, discard)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, "tok", got.Credentials.AccessToken)
}

func TestResolve_StaticMissing(t *testing.T) {
	cfg := config.Default()

	_, err := Resolve(context.Background(), &cfg, nil, discard)
	require.Error(t, err)
	assert.True(t, config.IsError(err))
}

func TestResolve_AWS(t *testing.T) {
	api := &fakeSecrets{value: aws.String(`{
		"client_id": "id",
		"client_secret": "shh",
		"token_url": "https://identity.example.com/connect/token",
		"scopes": ["accounting.transactions"]
	}`)}

	got, err := Resolve(context.Background(), awsConfig(), api, discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"ledgersync/prod"}, api.calls)
	assert.Equal(t, "tenant-from-file", got.TenantID, "tenant falls back to the config file")
	assert.Equal(t, "id", got.Credentials.ClientID)
	assert.Equal(t, "shh", got.Credentials.ClientSecret)
	assert.Equal(t, []string{"accounting.transactions"}, got.Credentials.Scopes)
	assert.False(t, got.Credentials.Empty())
}

func TestResolve_AWSSecretOverridesTenant(t *testing.T) {
	api := &fakeSecrets{value: aws.String(`{"tenant_id": "tenant-from-secret", "access_token": "tok"}`)}

	got, err := Resolve(context.Background(), awsConfig(), api, discard)
	require.NoError(t, err)
	assert.Equal(t, "tenant-from-secret", got.TenantID)
	assert.Equal(t, "tok", got.Credentials.AccessToken)
}

func TestResolve_AWSErrors(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeSecrets
		wantIs  error
		wantMsg string
	}{
		{
			name:   "not found",
			api:    &fakeSecrets{err: &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "nope"}},
			wantIs: ErrSecretNotFound,
		},
		{
			name:   "access denied",
			api:    &fakeSecrets{err: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}},
			wantIs: ErrAccessDenied,
		},
		{
			name:    "other api error",
			api:     &fakeSecrets{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}},
			wantMsg: "ThrottlingException: slow down",
		},
		{
			name:    "transport error",
			api:     &fakeSecrets{err: errors.New("dial tcp: refused")},
			wantMsg: "dial tcp: refused",
		},
		{
			name:   "empty secret",
			api:    &fakeSecrets{value: aws.String("")},
			wantIs: ErrSecretEmpty,
		},
		{
			name:    "not json",
			api:     &fakeSecrets{value: aws.String("access_token=tok")},
			wantMsg: "secret is not a JSON object",
		},
		{
			name:    "json without credentials",
			api:     &fakeSecrets{value: aws.String(`{"tenant_id": "t"}`)},
			wantMsg: "neither access_token nor client_id/client_secret/token_url is set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(context.Background(), awsConfig(), tt.api, discard)
			require.Error(t, err)
			assert.True(t, config.IsError(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.NotContains(t, err.Error(), "access_token=tok")
		})
	}
}

func TestResolve_AWSWithoutClient(t *testing.T) {
	_, err := Resolve(context.Background(), awsConfig(), nil, discard)
	require.Error(t, err)
	assert.True(t, config.IsError(err))
}
