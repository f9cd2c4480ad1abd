package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgersync/internal/ledger"
)

func newTestSession(t *testing.T, url string) Session {
	t.Helper()
	httpClient, err := NewHTTPClient(context.Background(), Credentials{AccessToken: "tok-123"}, 5*time.Second)
	require.NoError(t, err)
	return Session{BaseURL: url + "/api.xro/2.0/", TenantID: "tenant-1", UserAgent: "ledgersync/test", HTTP: httpClient}
}

func TestSubmit_Success(t *testing.T) {
	var gotPath, gotBody string
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`<Response><Status>OK</Status><Invoices><Invoice><InvoiceID>INV-A</InvoiceID><InvoiceNumber>WEB-5</InvoiceNumber></Invoice></Invoices></Response>`))
	}))
	defer srv.Close()

	c := NewClient(newTestSession(t, srv.URL))
	resp, err := c.Submit(context.Background(), ledger.Invoices, []byte("<Invoices></Invoices>"))
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []ledger.BatchItem{{RemoteID: "INV-A", Token: "WEB-5"}}, resp.Batch.Items)

	assert.Equal(t, "/api.xro/2.0/Invoices", gotPath)
	assert.Equal(t, "<Invoices></Invoices>", gotBody)
	assert.Equal(t, "Bearer tok-123", gotHeader.Get("Authorization"))
	assert.Equal(t, "tenant-1", gotHeader.Get(TenantHeader))
	assert.Equal(t, "application/xml", gotHeader.Get("Content-Type"))
	assert.Equal(t, "application/xml", gotHeader.Get("Accept"))
	assert.Equal(t, "ledgersync/test", gotHeader.Get("User-Agent"))
}

func TestSubmit_NonSuccessIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<ApiException><Message>A validation exception occurred</Message></ApiException>`))
	}))
	defer srv.Close()

	resp, err := NewClient(newTestSession(t, srv.URL)).Submit(context.Background(), ledger.Payments, []byte("<Payments></Payments>"))
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(resp.RawBody), "validation exception")
	assert.Empty(t, resp.Batch.Items)
}

func TestSubmit_UnreadableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<Response><Invoices>`))
	}))
	defer srv.Close()

	resp, err := NewClient(newTestSession(t, srv.URL)).Submit(context.Background(), ledger.Invoices, nil)
	assert.ErrorIs(t, err, ErrBadResponse)
	require.NotNil(t, resp)
	assert.Equal(t, "<Response><Invoices>", string(resp.RawBody))
}

func TestSubmit_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	resp, err := NewClient(newTestSession(t, url)).Submit(context.Background(), ledger.Invoices, nil)
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestSubmit_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(newTestSession(t, srv.URL)).Submit(ctx, ledger.Invoices, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHTTPClient_ClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-cc","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`<Response><Payments></Payments></Response>`))
	}))
	defer api.Close()

	httpClient, err := NewHTTPClient(context.Background(), Credentials{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
	}, 5*time.Second)
	require.NoError(t, err)

	c := NewClient(Session{BaseURL: api.URL, TenantID: "t", HTTP: httpClient})
	for i := 0; i < 2; i++ {
		resp, err := c.Submit(context.Background(), ledger.Payments, nil)
		require.NoError(t, err)
		assert.True(t, resp.OK())
	}
	assert.Equal(t, "Bearer tok-cc", auth)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token should be cached between requests")
}

func TestNewHTTPClient_NoCredentials(t *testing.T) {
	_, err := NewHTTPClient(context.Background(), Credentials{ClientID: "id"}, time.Second)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSession_Validate(t *testing.T) {
	ok := Session{BaseURL: "https://api.xero.com/api.xro/2.0", TenantID: "t", HTTP: http.DefaultClient}
	assert.NoError(t, ok.Validate())

	err := Session{BaseURL: "api.xero.com"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an absolute http(s) URL")
	assert.Contains(t, err.Error(), "tenant ID is empty")
	assert.Contains(t, err.Error(), "no HTTP client")
}
