// Package config loads ledgersync settings from a YAML file and the
// environment and validates them before anything talks to the remote ledger.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Credential sources.
const (
	SourceStatic = "static"
	SourceAWS    = "aws"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEDGERSYNC_"

// Config is the full ledgersync configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" json:"store"`
	Ledger      LedgerConfig      `yaml:"ledger" json:"ledger"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Events      EventsConfig      `yaml:"events" json:"events"`
	Sandbox     SandboxConfig     `yaml:"sandbox" json:"sandbox"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// LedgerConfig describes the remote ledger session and how documents are built.
type LedgerConfig struct {
	BaseURL        string   `yaml:"base_url" json:"base_url"`
	TenantID       string   `yaml:"tenant_id" json:"tenant_id"`
	UserAgent      string   `yaml:"user_agent" json:"user_agent"`
	Timeout        Duration `yaml:"timeout" json:"timeout"`
	InvoicePrefix  string   `yaml:"invoice_prefix" json:"invoice_prefix"`
	PaymentPrefix  string   `yaml:"payment_prefix" json:"payment_prefix"` // defaults to InvoicePrefix
	SalesAccount   string   `yaml:"sales_account" json:"sales_account"`
	PaymentAccount string   `yaml:"payment_account" json:"payment_account"`
	BaseCurrency   string   `yaml:"base_currency" json:"base_currency"`
}

// CredentialsConfig holds static credentials, or the AWS Secrets Manager
// secret they are read from when Source is "aws".
type CredentialsConfig struct {
	Source       string   `yaml:"source" json:"source"`
	AccessToken  string   `yaml:"access_token" json:"-"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"-"`
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
	AWSSecretID  string   `yaml:"aws_secret_id" json:"aws_secret_id"`
	AWSRegion    string   `yaml:"aws_region" json:"aws_region"`
}

type EventsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	URL       string `yaml:"url" json:"url"`
	ClusterID string `yaml:"cluster_id" json:"cluster_id"`
	ClientID  string `yaml:"client_id" json:"client_id"`
	Subject   string `yaml:"subject" json:"subject"`
}

type SandboxConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	AccessToken string `yaml:"access_token" json:"-"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file and no environment
// override says otherwise.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "ledgersync.db",
		},
		Ledger: LedgerConfig{
			BaseURL:        "https://api.xero.com/api.xro/2.0",
			UserAgent:      "ledgersync",
			Timeout:        Duration(30 * time.Second),
			InvoicePrefix:  "WEB-",
			SalesAccount:   "200",
			PaymentAccount: "090",
			BaseCurrency:   "NZD",
		},
		Credentials: CredentialsConfig{
			Source: SourceStatic,
		},
		Events: EventsConfig{
			URL:       "nats://127.0.0.1:4222",
			ClusterID: "test-cluster",
			Subject:   "ledgersync.synced",
		},
		Sandbox: SandboxConfig{
			Addr:        "127.0.0.1:8089",
			TenantID:    "sandbox-tenant",
			AccessToken: "sandbox-token",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies LEDGERSYNC_*
// environment overrides and validates the result. Validation failures are
// returned as *Error.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Problems: []string{fmt.Sprintf("reading config file: %v", err)}, Err: err}
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Diagnose loads like Load but reports every schema and credential problem
// instead of stopping at the first failing step. An empty result means a
// sync could start with this configuration.
func Diagnose(path string) []string {
	return diagnose(path, os.LookupEnv)
}

func diagnose(path string, lookup func(string) (string, bool)) []string {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return []string{fmt.Sprintf("reading config file: %v", err)}
		}
		if err := Parse(data, &cfg); err != nil {
			return problemsOf(err)
		}
	}

	var problems []string
	if err := applyEnv(&cfg, lookup); err != nil {
		problems = append(problems, problemsOf(err)...)
	}
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		problems = append(problems, problemsOf(err)...)
	}
	return append(problems, cfg.CredentialProblems()...)
}

// Parse decodes YAML into cfg, keeping values already set in cfg for keys
// the document does not mention. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Problems: []string{fmt.Sprintf("parsing config: %v", err)}, Err: err}
	}
	return nil
}

func (c *Config) fillDerived() {
	if c.Ledger.PaymentPrefix == "" {
		c.Ledger.PaymentPrefix = c.Ledger.InvoicePrefix
	}
}

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(field func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

var envVars = []envVar{
	{"STORE_DRIVER", str(func(c *Config) *string { return &c.Store.Driver })},
	{"STORE_PATH", str(func(c *Config) *string { return &c.Store.Path })},
	{"STORE_DSN", str(func(c *Config) *string { return &c.Store.DSN })},
	{"BASE_URL", str(func(c *Config) *string { return &c.Ledger.BaseURL })},
	{"TENANT_ID", str(func(c *Config) *string { return &c.Ledger.TenantID })},
	{"USER_AGENT", str(func(c *Config) *string { return &c.Ledger.UserAgent })},
	{"INVOICE_PREFIX", str(func(c *Config) *string { return &c.Ledger.InvoicePrefix })},
	{"PAYMENT_PREFIX", str(func(c *Config) *string { return &c.Ledger.PaymentPrefix })},
	{"SALES_ACCOUNT", str(func(c *Config) *string { return &c.Ledger.SalesAccount })},
	{"PAYMENT_ACCOUNT", str(func(c *Config) *string { return &c.Ledger.PaymentAccount })},
	{"BASE_CURRENCY", str(func(c *Config) *string { return &c.Ledger.BaseCurrency })},
	{"TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Ledger.Timeout = Duration(d)
		return nil
	}},
	{"CREDENTIALS_SOURCE", str(func(c *Config) *string { return &c.Credentials.Source })},
	{"ACCESS_TOKEN", str(func(c *Config) *string { return &c.Credentials.AccessToken })},
	{"CLIENT_ID", str(func(c *Config) *string { return &c.Credentials.ClientID })},
	{"CLIENT_SECRET", str(func(c *Config) *string { return &c.Credentials.ClientSecret })},
	{"TOKEN_URL", str(func(c *Config) *string { return &c.Credentials.TokenURL })},
	{"AWS_SECRET_ID", str(func(c *Config) *string { return &c.Credentials.AWSSecretID })},
	{"AWS_REGION", str(func(c *Config) *string { return &c.Credentials.AWSRegion })},
	{"EVENTS_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Events.Enabled = b
		return nil
	}},
	{"NATS_URL", str(func(c *Config) *string { return &c.Events.URL })},
	{"NATS_CLUSTER_ID", str(func(c *Config) *string { return &c.Events.ClusterID })},
	{"NATS_CLIENT_ID", str(func(c *Config) *string { return &c.Events.ClientID })},
	{"NATS_SUBJECT", str(func(c *Config) *string { return &c.Events.Subject })},
	{"SANDBOX_ADDR", str(func(c *Config) *string { return &c.Sandbox.Addr })},
}

// applyEnv overlays LEDGERSYNC_* variables. Every malformed value is reported.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var problems []string
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			problems = append(problems, fmt.Sprintf("%s%s: %v", EnvPrefix, ev.name, err))
		}
	}
	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}
