package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/ledgersync/internal/ledger"
)

const (
	// TenantHeader selects the organisation a request applies to.
	TenantHeader = "Xero-tenant-id"

	contentTypeXML = "application/xml"
	maxBodyBytes   = 8 << 20
)

// ErrBadResponse is returned when a 2xx reply cannot be parsed. The remote
// may have created documents that could not be correlated.
var ErrBadResponse = errors.New("unreadable remote response")

// Session is the explicit per-run connection state.
type Session struct {
	BaseURL   string
	TenantID  string
	UserAgent string
	HTTP      *http.Client
}

// Validate reports every missing or malformed field.
func (s Session) Validate() error {
	var errs []error
	if s.BaseURL == "" {
		errs = append(errs, errors.New("base URL is empty"))
	} else if u, err := url.Parse(s.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q is not an absolute http(s) URL", s.BaseURL))
	}
	if s.TenantID == "" {
		errs = append(errs, errors.New("tenant ID is empty"))
	}
	if s.HTTP == nil {
		errs = append(errs, errors.New("no HTTP client"))
	}
	return errors.Join(errs...)
}

// Response is the outcome of one submission.
type Response struct {
	StatusCode int
	Batch      ledger.BatchResponse // set only when OK
	RawBody    []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client posts batches using a Session.
type Client struct {
	session Session
}

func NewClient(session Session) *Client {
	return &Client{session: session}
}

// Submit posts body to the collection endpoint and waits for the reply.
func (c *Client) Submit(ctx context.Context, collection ledger.Collection, body []byte) (*Response, error) {
	endpoint := strings.TrimRight(c.session.BaseURL, "/") + "/" + string(collection)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", collection, err)
	}
	req.Header.Set("Content-Type", contentTypeXML)
	req.Header.Set("Accept", contentTypeXML)
	req.Header.Set(TenantHeader, c.session.TenantID)
	if c.session.UserAgent != "" {
		req.Header.Set("User-Agent", c.session.UserAgent)
	}

	httpResp, err := c.session.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", collection, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("submit %s: read body: %w", collection, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, RawBody: raw}
	if !resp.OK() {
		return resp, nil
	}

	batch, err := ledger.ParseBatchResponse(collection, raw)
	if err != nil {
		return resp, fmt.Errorf("submit %s: %w: %v", collection, ErrBadResponse, err)
	}
	resp.Batch = batch
	return resp, nil
}
