// Package credentials resolves the tenant and OAuth credentials used to talk
// to the remote ledger, either straight from configuration or from an AWS
// Secrets Manager secret.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/remote"
)

// AWS error codes handled explicitly.
const (
	resourceNotFoundException = "ResourceNotFoundException"
	accessDeniedException     = "AccessDeniedException"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrSecretEmpty    = errors.New("secret value is empty")
	ErrAccessDenied   = errors.New("access denied to secret")
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsAPI builds a Secrets Manager client from the default AWS
// credential chain. An empty region leaves the chain's region in place.
func NewSecretsAPI(ctx context.Context, region string) (SecretsAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// Resolved is what a sync session needs to authenticate.
type Resolved struct {
	TenantID    string
	Credentials remote.Credentials
}

// secret is the JSON document stored in the secret. Fields left empty fall
// back to the configuration file.
type secret struct {
	TenantID     string   `json:"tenant_id"`
	AccessToken  string   `json:"access_token"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// Resolve returns the credentials for cfg. secrets is only used when the
// configured source is "aws" and may be nil otherwise. Every failure is a
// *config.Error, so callers abort before any submission.
func Resolve(ctx context.Context, cfg *config.Config, secrets SecretsAPI, logger *slog.Logger) (Resolved, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.CheckCredentials(); err != nil {
		return Resolved{}, err
	}

	cc := cfg.Credentials
	out := Resolved{
		TenantID: cfg.Ledger.TenantID,
		Credentials: remote.Credentials{
			AccessToken:  cc.AccessToken,
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			TokenURL:     cc.TokenURL,
			Scopes:       cc.Scopes,
		},
	}
	if cc.Source != config.SourceAWS {
		return out, nil
	}

	if secrets == nil {
		return Resolved{}, &config.Error{Problems: []string{"credentials: no secrets client for the aws source"}}
	}
	logger.DebugContext(ctx, "fetching ledger credentials", "secret_id", cc.AWSSecretID)

	s, err := fetch(ctx, secrets, cc.AWSSecretID)
	if err != nil {
		return Resolved{}, &config.Error{
			Problems: []string{fmt.Sprintf("credentials.aws_secret_id %q: %v", cc.AWSSecretID, err)},
			Err:      err,
		}
	}
	out.merge(s)

	if problems := config.StaticCredentialProblems(
		out.Credentials.AccessToken, out.Credentials.ClientID,
		out.Credentials.ClientSecret, out.Credentials.TokenURL,
	); len(problems) > 0 {
		return Resolved{}, &config.Error{Problems: problems}
	}
	return out, nil
}

func (r *Resolved) merge(s secret) {
	if s.TenantID != "" {
		r.TenantID = s.TenantID
	}
	c := &r.Credentials
	if s.AccessToken != "" {
		c.AccessToken = s.AccessToken
	}
	if s.ClientID != "" {
		c.ClientID = s.ClientID
	}
	if s.ClientSecret != "" {
		c.ClientSecret = s.ClientSecret
	}
	if s.TokenURL != "" {
		c.TokenURL = s.TokenURL
	}
	if len(s.Scopes) > 0 {
		c.Scopes = s.Scopes
	}
}

func fetch(ctx context.Context, api SecretsAPI, id string) (secret, error) {
	output, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case resourceNotFoundException:
				return secret{}, ErrSecretNotFound
			case accessDeniedException:
				return secret{}, ErrAccessDenied
			}
			return secret{}, fmt.Errorf("GetSecretValue: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return secret{}, fmt.Errorf("GetSecretValue: %w", err)
	}

	raw := aws.ToString(output.SecretString)
	if raw == "" {
		raw = string(output.SecretBinary)
	}
	if raw == "" {
		return secret{}, ErrSecretEmpty
	}

	var s secret
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// Never echo the payload.
		return secret{}, errors.New("secret is not a JSON object")
	}
	return s, nil
}
