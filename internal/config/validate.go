package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgersync/internal/ledger"
)

//go:embed schema.cue
var schemaSource string

// Validate checks c against the #Config schema and the correlation prefix
// rules. It does not check credentials; see CredentialProblems.
func (c *Config) Validate() error {
	problems, err := c.schemaProblems()
	if err != nil {
		return &Error{Problems: []string{err.Error()}, Err: err}
	}
	if len(problems) == 0 {
		for _, p := range []struct{ field, value string }{
			{"ledger.invoice_prefix", c.Ledger.InvoicePrefix},
			{"ledger.payment_prefix", c.Ledger.PaymentPrefix},
		} {
			if err := ledger.ValidatePrefix(p.value); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", p.field, err))
			}
		}
		if c.Ledger.Timeout <= 0 {
			problems = append(problems, "ledger.timeout: must be positive")
		}
	}
	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

func (c *Config) schemaProblems() ([]string, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc, err := c.document()
	if err != nil {
		return nil, err
	}
	data := ctx.Encode(doc)
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	err = def.Unify(data).Validate(cue.Concrete(true))
	if err == nil {
		return nil, nil
	}
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := strings.Join(e.Path(), "."); path != "" {
			msg = path + ": " + msg
		}
		problems = append(problems, msg)
	}
	return problems, nil
}

// document renders c as the generic map the schema is checked against, using
// the same keys as the YAML file.
func (c *Config) document() (map[string]any, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return doc, nil
}

// CredentialProblems lists what is missing before a sync can talk to the
// remote ledger. With the "aws" source the secret supplies the credentials,
// so only the tenant and secret ID are checked here.
func (c *Config) CredentialProblems() []string {
	var problems []string
	if c.Ledger.TenantID == "" {
		problems = append(problems, "ledger.tenant_id: not set")
	}
	if u, err := url.Parse(c.Ledger.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, fmt.Sprintf("ledger.base_url: %q is not an http(s) URL", c.Ledger.BaseURL))
	}

	cr := c.Credentials
	switch cr.Source {
	case SourceAWS:
		if cr.AWSSecretID == "" {
			problems = append(problems, "credentials.aws_secret_id: not set")
		}
	default:
		problems = append(problems, StaticCredentialProblems(cr.AccessToken, cr.ClientID, cr.ClientSecret, cr.TokenURL)...)
	}
	return problems
}

// StaticCredentialProblems reports whether an access token, or a complete
// client-credentials triple, is present.
func StaticCredentialProblems(accessToken, clientID, clientSecret, tokenURL string) []string {
	if accessToken != "" {
		return nil
	}
	if clientID == "" && clientSecret == "" && tokenURL == "" {
		return []string{"credentials: neither access_token nor client_id/client_secret/token_url is set"}
	}
	var problems []string
	if clientID == "" {
		problems = append(problems, "credentials.client_id: not set")
	}
	if clientSecret == "" {
		problems = append(problems, "credentials.client_secret: not set")
	}
	if tokenURL == "" {
		problems = append(problems, "credentials.token_url: not set")
	}
	return problems
}

// CheckCredentials wraps CredentialProblems in an *Error.
func (c *Config) CheckCredentials() error {
	if problems := c.CredentialProblems(); len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}
