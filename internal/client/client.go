// Package client talks to a running RegiDesk server over HTTP. Admin calls
// are signed with the shared admin secret.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"

	"github.com/dharsanguruparan/RegiDesk/internal/api"
	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	"github.com/dharsanguruparan/RegiDesk/internal/signing"
	"github.com/dharsanguruparan/RegiDesk/internal/validate"
)

const signatureTTL = time.Minute

// SubmitResult mirrors the body of POST /api/submit-form.
type SubmitResult struct {
	Message      string                `json:"message"`
	SubmissionID string                `json:"submissionId"`
	Error        string                `json:"error"`
	Fields       []validate.FieldError `json:"fields"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Client is a thin resty wrapper for the RegiDesk endpoints.
type Client struct {
	http   *resty.Client
	signer *signing.Signer
	base   string
}

// New creates a client for baseURL. signer may be nil when only the public
// endpoints are used.
func New(baseURL string, signer *signing.Signer, timeout time.Duration, logger *log.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			// connection errors only; a flush must never be replayed on a 5xx
			return err != nil
		})
	if logger != nil {
		rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			logger.Debug("api response", "method", resp.Request.Method, "url", resp.Request.URL,
				"status", resp.StatusCode(), "took", resp.Time())
			return nil
		})
	}
	return &Client{http: rc, signer: signer, base: baseURL}
}

func (c *Client) admin(ctx context.Context, method, path string) (*resty.Request, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("admin secret not configured")
	}
	exp := time.Now().Add(signatureTTL).Unix()
	return c.http.R().
		SetContext(ctx).
		SetHeader(signing.HeaderExpires, strconv.FormatInt(exp, 10)).
		SetHeader(signing.HeaderSignature, c.signer.Sign(method, path, exp)), nil
}

func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s%s: %w", method, c.base, path, err)
	}
	if resp.IsError() {
		return resp, &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}
	return resp, nil
}

// Submit posts one registration. A validation failure is reported in the
// result together with a *StatusError.
func (c *Client) Submit(ctx context.Context, rec model.SubmissionRecord) (*SubmitResult, error) {
	var out SubmitResult
	req := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rec).
		SetResult(&out).
		SetError(&out)
	_, err := c.do(req, http.MethodPost, "/api/submit-form")
	return &out, err
}

// Status returns the batch buffer state.
func (c *Client) Status(ctx context.Context) (*api.BatchStatus, error) {
	req, err := c.admin(ctx, http.MethodGet, "/admin/batch")
	if err != nil {
		return nil, err
	}
	var out api.BatchStatus
	if _, err := c.do(req.SetResult(&out), http.MethodGet, "/admin/batch"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Flush triggers a drain on the server. The report is returned for skipped
// and failed drains as well.
func (c *Client) Flush(ctx context.Context) (*batch.Report, error) {
	req, err := c.admin(ctx, http.MethodPost, "/admin/flush")
	if err != nil {
		return nil, err
	}
	var out batch.Report
	_, err = c.do(req.SetResult(&out).SetError(&out), http.MethodPost, "/admin/flush")
	return &out, err
}

// Flushes lists recent drain reports, newest first.
func (c *Client) Flushes(ctx context.Context, limit int) ([]batch.Report, error) {
	req, err := c.admin(ctx, http.MethodGet, "/admin/flushes")
	if err != nil {
		return nil, err
	}
	var out []batch.Report
	req.SetQueryParam("limit", strconv.Itoa(limit)).SetResult(&out)
	if _, err := c.do(req, http.MethodGet, "/admin/flushes"); err != nil {
		return nil, err
	}
	return out, nil
}

// Ledger downloads the current workbook and its data row count.
func (c *Client) Ledger(ctx context.Context) ([]byte, int, error) {
	req, err := c.admin(ctx, http.MethodGet, "/admin/ledger")
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.do(req, http.MethodGet, "/admin/ledger")
	if err != nil {
		return nil, 0, err
	}
	rows, _ := strconv.Atoi(resp.Header().Get("X-Ledger-Rows"))
	return resp.Body(), rows, nil
}

// Submission fetches the audit record of one submission.
func (c *Client) Submission(ctx context.Context, id string) (*api.SubmissionDetail, error) {
	path := "/admin/submissions/" + id
	req, err := c.admin(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	var out api.SubmissionDetail
	if _, err := c.do(req.SetResult(&out), http.MethodGet, path); err != nil {
		return nil, err
	}
	return &out, nil
}
