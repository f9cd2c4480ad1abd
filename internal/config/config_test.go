package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testProblemsOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.True(t, IsError(err), "expected *config.Error, got %T: %v", err, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	return strings.Join(cfgErr.Problems, "\n")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", noEnv)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "WEB-", cfg.Ledger.InvoicePrefix)
	assert.Equal(t, "WEB-", cfg.Ledger.PaymentPrefix, "payment prefix falls back to the invoice prefix")
	assert.Equal(t, 30*time.Second, cfg.Ledger.Timeout.Std())
	assert.Equal(t, SourceStatic, cfg.Credentials.Source)
	assert.False(t, cfg.Events.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: postgres
  dsn: postgres://localhost/shop
ledger:
  tenant_id: tenant-1
  timeout: 5s
  invoice_prefix: SHOP-
  payment_prefix: PAY-
  base_currency: AUD
credentials:
  access_token: secret
`)
	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/shop", cfg.Store.DSN)
	assert.Equal(t, "tenant-1", cfg.Ledger.TenantID)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout.Std())
	assert.Equal(t, "SHOP-", cfg.Ledger.InvoicePrefix)
	assert.Equal(t, "PAY-", cfg.Ledger.PaymentPrefix)
	assert.Equal(t, "AUD", cfg.Ledger.BaseCurrency)
	assert.Equal(t, "200", cfg.Ledger.SalesAccount, "unset keys keep their defaults")
	assert.Equal(t, "secret", cfg.Credentials.AccessToken)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := load(writeConfig(t, ""), noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default().Ledger.BaseURL, cfg.Ledger.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), noEnv)
	assert.Contains(t, testProblemsOf(t, err), "reading config file")
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "ledger:\n  tenant: x\n")
	_, err := load(path, noEnv)
	assert.Contains(t, testProblemsOf(t, err), "tenant")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "ledger:\n  timeout: soon\n")
	_, err := load(path, noEnv)
	assert.Contains(t, testProblemsOf(t, err), `invalid duration "soon"`)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "ledger:\n  tenant_id: from-file\n")
	cfg, err := load(path, envMap(map[string]string{
		"LEDGERSYNC_TENANT_ID":      "from-env",
		"LEDGERSYNC_TIMEOUT":        "1m",
		"LEDGERSYNC_EVENTS_ENABLED": "true",
		"LEDGERSYNC_NATS_URL":       "nats://bus:4222",
		"LEDGERSYNC_STORE_PATH":     "/var/lib/ledgersync.db",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Ledger.TenantID)
	assert.Equal(t, time.Minute, cfg.Ledger.Timeout.Std())
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://bus:4222", cfg.Events.URL)
	assert.Equal(t, "/var/lib/ledgersync.db", cfg.Store.Path)
}

func TestLoad_BadEnvValuesAreAllReported(t *testing.T) {
	_, err := load("", envMap(map[string]string{
		"LEDGERSYNC_TIMEOUT":        "later",
		"LEDGERSYNC_EVENTS_ENABLED": "sometimes",
	}))
	problems := testProblemsOf(t, err)
	assert.Contains(t, problems, "LEDGERSYNC_TIMEOUT")
	assert.Contains(t, problems, "LEDGERSYNC_EVENTS_ENABLED")
}

func TestValidate_Schema(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.dsn"},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"prefix ends in digit", func(c *Config) { c.Ledger.InvoicePrefix = "INV1" }, "ledger.invoice_prefix"},
		{"prefix with space", func(c *Config) { c.Ledger.PaymentPrefix = "PAY -" }, "ledger.payment_prefix"},
		{"lowercase currency", func(c *Config) { c.Ledger.BaseCurrency = "nzd" }, "ledger.base_currency"},
		{"base url without scheme", func(c *Config) { c.Ledger.BaseURL = "api.example.com" }, "ledger.base_url"},
		{"negative timeout", func(c *Config) { c.Ledger.Timeout = Duration(-time.Second) }, "ledger.timeout"},
		{"zero timeout", func(c *Config) { c.Ledger.Timeout = 0 }, "ledger.timeout: must be positive"},
		{"aws without secret", func(c *Config) { c.Credentials.Source = SourceAWS }, "credentials.aws_secret_id"},
		{"unknown source", func(c *Config) { c.Credentials.Source = "vault" }, "credentials.source"},
		{"events without url", func(c *Config) {
			c.Events.Enabled = true
			c.Events.URL = ""
		}, "events.url"},
		{"empty sales account", func(c *Config) { c.Ledger.SalesAccount = "" }, "ledger.sales_account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.fillDerived()
			tt.mutate(&cfg)
			assert.Contains(t, testProblemsOf(t, cfg.Validate()), tt.want)
		})
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.fillDerived()
	require.NoError(t, cfg.Validate())
}

func TestCredentialProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name: "token and tenant",
			mutate: func(c *Config) {
				c.Ledger.TenantID = "t"
				c.Credentials.AccessToken = "tok"
			},
		},
		{
			name: "client credentials",
			mutate: func(c *Config) {
				c.Ledger.TenantID = "t"
				c.Credentials.ClientID = "id"
				c.Credentials.ClientSecret = "s"
				c.Credentials.TokenURL = "https://auth.example.com/token"
			},
		},
		{
			name:   "nothing set lists every problem",
			mutate: func(c *Config) {},
			want: []string{
				"ledger.tenant_id: not set",
				"credentials: neither access_token nor client_id/client_secret/token_url is set",
			},
		},
		{
			name: "partial client credentials",
			mutate: func(c *Config) {
				c.Ledger.TenantID = "t"
				c.Credentials.ClientID = "id"
			},
			want: []string{
				"credentials.client_secret: not set",
				"credentials.token_url: not set",
			},
		},
		{
			name: "bad base url",
			mutate: func(c *Config) {
				c.Ledger.TenantID = "t"
				c.Ledger.BaseURL = "ftp://example.com"
				c.Credentials.AccessToken = "tok"
			},
			want: []string{`ledger.base_url: "ftp://example.com" is not an http(s) URL`},
		},
		{
			name: "aws only needs the secret id",
			mutate: func(c *Config) {
				c.Ledger.TenantID = "t"
				c.Credentials.Source = SourceAWS
				c.Credentials.AWSSecretID = "ledgersync/prod"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Equal(t, tt.want, cfg.CredentialProblems())

			err := cfg.CheckCredentials()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsError(err))
			}
		})
	}
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "invalid configuration: a", (&Error{Problems: []string{"a"}}).Error())
	assert.Equal(t, "invalid configuration:\n  - a\n  - b", (&Error{Problems: []string{"a", "b"}}).Error())
	assert.False(t, IsError(os.ErrNotExist))
}

func TestDiagnose_CollectsEveryStage(t *testing.T) {
	path := writeConfig(t, "ledger:\n  base_currency: nzd\n")
	problems := strings.Join(diagnose(path, envMap(map[string]string{
		"LEDGERSYNC_TIMEOUT": "whenever",
	})), "\n")

	assert.Contains(t, problems, "LEDGERSYNC_TIMEOUT")
	assert.Contains(t, problems, "ledger.base_currency")
	assert.Contains(t, problems, "ledger.tenant_id: not set")
	assert.Contains(t, problems, "credentials: neither access_token")
}

func TestDiagnose_Clean(t *testing.T) {
	path := writeConfig(t, "ledger:\n  tenant_id: t\ncredentials:\n  access_token: tok\n")
	assert.Empty(t, diagnose(path, noEnv))
}

func TestDiagnose_UnreadableFile(t *testing.T) {
	problems := diagnose(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "reading config file")
}
