package cli

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/store"
)

func TestSync_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)

	out, err := e.run(t, "--format", "json", "sync")
	require.NoError(t, err)

	resp := decode[SyncSummary](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, resp.RunID, resp.Data.RunID)
	assert.Equal(t, 1, resp.Data.Invoices.Reconciled, "the cart is never submitted")
	assert.Equal(t, 1, resp.Data.Payments.Reconciled, "the payment follows its invoice in the same run")

	created := e.sandbox.Created(ledger.Invoices)
	require.Len(t, created, 1)
	inv := created[0].Document.(*ledger.Invoice)
	assert.Equal(t, "WEB-5", inv.InvoiceNumber)
	require.Len(t, inv.LineItems, 2, "untaxed modifiers are left out")
	assert.Equal(t, "T-Shirt Size: Large, Colour: Red", inv.LineItems[0].Description)

	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()
	o, err := st.Order(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, created[0].RemoteID, o.RemoteInvoiceRef)
}

func TestSync_SecondRunSubmitsNothing(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)

	_, err := e.run(t, "sync")
	require.NoError(t, err)
	out, err := e.run(t, "sync")
	require.NoError(t, err)

	assert.Contains(t, out, "0 invoice(s) created")
	assert.Equal(t, 1, e.sandbox.Submissions(ledger.Invoices))
	assert.Equal(t, 1, e.sandbox.Submissions(ledger.Payments))
}

func TestSync_Only(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)

	out, err := e.run(t, "sync", "--only", "invoices")
	require.NoError(t, err)
	assert.Contains(t, out, "1 invoice(s) created")
	assert.NotContains(t, out, "payment(s)")
	assert.Zero(t, e.sandbox.Submissions(ledger.Payments))

	_, err = e.run(t, "sync", "--only", "Payments")
	require.NoError(t, err)
	assert.Equal(t, 1, e.sandbox.Submissions(ledger.Payments))
}

func TestSync_InvalidOnly(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "sync", "--only", "refunds")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUsage)
}

func TestSync_DryRun(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)

	out, err := e.run(t, "sync", "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "<Invoices><Invoice>")
	assert.Contains(t, out, "<InvoiceNumber>WEB-5</InvoiceNumber>")
	assert.Contains(t, out, "1 invoice(s) prepared (dry run)")
	assert.Zero(t, e.sandbox.Submissions(ledger.Invoices))
}

func TestSync_DryRunJSON(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)

	out, err := e.run(t, "--format", "json", "sync", "--dry-run")
	require.NoError(t, err)

	resp := decode[SyncSummary](t, out)
	assert.True(t, resp.Data.Invoices.DryRun)
	assert.Contains(t, resp.Data.DryRunOutput, "<InvoiceNumber>WEB-5</InvoiceNumber>")
}

func TestSync_DryRunNeedsNoCredentials(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)
	t.Setenv("LEDGERSYNC_ACCESS_TOKEN", "")

	_, err := e.run(t, "sync", "--dry-run")
	require.NoError(t, err)
}

func TestSync_MissingCredentials(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)
	t.Setenv("LEDGERSYNC_ACCESS_TOKEN", "")
	t.Setenv("LEDGERSYNC_TENANT_ID", "")

	out, err := e.run(t, "--format", "json", "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decode[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "ledger.tenant_id: not set")
	assert.Contains(t, resp.Error.Message, "access_token")
	assert.Zero(t, e.sandbox.Submissions(ledger.Invoices), "nothing is submitted with bad credentials")
}

func TestSync_RemoteFailure(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)
	e.sandbox.FailNext(http.StatusInternalServerError, "<ApiException><Message>down</Message></ApiException>")

	out, err := e.run(t, "--format", "json", "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode[any](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeSyncFailed, resp.Error.Code)
	assert.NotEmpty(t, resp.RunID)
	summary := resp.summary(t)
	assert.Equal(t, http.StatusInternalServerError, summary.Invoices.StatusCode)
	assert.Zero(t, summary.Invoices.Reconciled)
	assert.Zero(t, summary.Payments.Submitted, "the payment's order has no invoice yet")

	// The next run picks the order up again.
	out, err = e.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "1 invoice(s) created")
	assert.Contains(t, out, "1 payment(s) created")
}

func TestSync_RunInProgress(t *testing.T) {
	e := newEnv(t)
	e.importFixture(t)

	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()
	release, err := st.AcquireRunLock(context.Background(), "other-run", time.Now())
	require.NoError(t, err)
	defer release(context.Background())

	out, err := e.run(t, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeRunInProgress)
	assert.True(t, strings.Contains(err.Error(), "other-run"))
	assert.Zero(t, e.sandbox.Submissions(ledger.Invoices))
}
