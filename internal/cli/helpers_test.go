package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/sandbox"
)

const fixturePath = "../importer/testdata/shop.yaml"

// execute runs the root command with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// env is a sandbox ledger plus a config file pointing a SQLite store and the
// ledger client at it.
type env struct {
	sandbox    *sandbox.Server
	configPath string
	dbPath     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sb := sandbox.NewServer(sandbox.Options{TenantID: "tenant", AccessToken: "tok"})
	srv := httptest.NewServer(sb.Router)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	e := &env{sandbox: sb, dbPath: filepath.Join(dir, "shop.db")}
	e.configPath = writeFile(t, dir, "ledgersync.yaml", fmt.Sprintf(`
store:
  path: %s
ledger:
  base_url: %s%s
  tenant_id: tenant
  timeout: 5s
credentials:
  access_token: tok
`, e.dbPath, srv.URL, sandbox.BasePath))
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", e.configPath}, args...)...)
}

func (e *env) importFixture(t *testing.T) {
	t.Helper()
	_, err := e.run(t, "import", fixturePath)
	require.NoError(t, err)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// response is CLIResponse with typed payloads.
type response[T any] struct {
	Status string    `json:"status"`
	RunID  string    `json:"run_id"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// summary decodes the run summary attached to a failed sync.
func (r response[T]) summary(t *testing.T) SyncSummary {
	t.Helper()
	require.NotNil(t, r.Error)
	raw, err := json.Marshal(r.Error.Details)
	require.NoError(t, err)
	var s SyncSummary
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}
