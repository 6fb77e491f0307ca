package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/authhttp"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/logging"
	"github.com/KasumiMercury/primind-remind-engine/internal/observability/tracing"
)

var ErrUnexpectedStatus = errors.New("unexpected status code from remote store")

// Client is the remote store reached over HTTP. Rows live under
// /api/v1/tables/{table}/rows/{remoteId}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: authhttp.NewClient(baseURL, authhttp.DefaultTimeout),
	}
}

// NewClientWithHTTP uses the given http.Client as is.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

var _ domain.RemoteStore = (*Client)(nil)

func (c *Client) Fetch(ctx context.Context, table, remoteID string) (*domain.RemoteRow, error) {
	u, err := c.rowURL(table, remoteID)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, "fetch", http.MethodGet, u, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var row RowResponse
	if err := json.Unmarshal(body, &row); err != nil {
		slog.ErrorContext(ctx, "failed to decode remote row",
			slog.String("table", table),
			slog.String("remote_id", remoteID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if row.RemoteID == "" {
		row.RemoteID = remoteID
	}
	return &domain.RemoteRow{
		RemoteID:  row.RemoteID,
		Fields:    row.Fields,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (c *Client) Insert(ctx context.Context, table string, fields map[string]any, updatedAt time.Time) (string, error) {
	u, err := c.tableURL(table)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, "insert", http.MethodPost, u, &WriteRequest{Fields: fields, UpdatedAt: updatedAt}, http.StatusCreated, http.StatusOK)
	if err != nil {
		return "", err
	}

	var resp InsertResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.RemoteID == "" {
		return "", fmt.Errorf("%w: insert returned no remote id", ErrUnexpectedStatus)
	}

	slog.DebugContext(ctx, "remote row inserted",
		slog.String("table", table),
		slog.String("remote_id", resp.RemoteID),
	)
	return resp.RemoteID, nil
}

func (c *Client) Update(ctx context.Context, table, remoteID string, fields map[string]any, updatedAt time.Time) error {
	u, err := c.rowURL(table, remoteID)
	if err != nil {
		return err
	}

	_, err = c.do(ctx, "update", http.MethodPut, u, &WriteRequest{Fields: fields, UpdatedAt: updatedAt}, http.StatusOK, http.StatusNoContent)
	return err
}

func (c *Client) Delete(ctx context.Context, table, remoteID string) error {
	u, err := c.rowURL(table, remoteID)
	if err != nil {
		return err
	}

	_, err = c.do(ctx, "delete", http.MethodDelete, u, nil, http.StatusOK, http.StatusNoContent)
	return err
}

func (c *Client) tableURL(table string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	return u.JoinPath("api", "v1", "tables", table, "rows").String(), nil
}

func (c *Client) rowURL(table, remoteID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	return u.JoinPath("api", "v1", "tables", table, "rows", remoteID).String(), nil
}

// do sends the request and maps the status: 404 to ErrRemoteNotFound, other 4xx to
// ErrRemoteRejected, anything else unexpected to a transient error.
func (c *Client) do(ctx context.Context, operation, method, u string, payload any, expected ...int) ([]byte, error) {
	ctx, span := tracing.StartExternalAPISpan(ctx, operation, u)
	defer span.End()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	requestID := logging.ValidateAndExtractRequestID(logging.RequestIDFromContext(ctx))
	req.Header.Set("x-request-id", requestID)
	tracing.InjectToHTTPRequest(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "failed to send request to remote store",
			slog.String("operation", operation),
			slog.String("url", u),
			slog.String("error", err.Error()),
		)
		tracing.RecordResult(span, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordResult(span, err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	for _, code := range expected {
		if resp.StatusCode == code {
			tracing.RecordResult(span, nil)
			return body, nil
		}
	}

	err = statusError(resp.StatusCode, body)
	slog.WarnContext(ctx, "unexpected status code from remote store",
		slog.String("operation", operation),
		slog.String("url", u),
		slog.Int("status_code", resp.StatusCode),
	)
	tracing.RecordResult(span, err)
	return nil, err
}

func statusError(code int, body []byte) error {
	var e ErrorResponse
	_ = json.Unmarshal(body, &e)

	switch {
	case code == http.StatusNotFound:
		return domain.ErrRemoteNotFound
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout:
		if e.Error != "" {
			return fmt.Errorf("%w: %d: %s", domain.ErrRemoteRejected, code, e.Error)
		}
		return fmt.Errorf("%w: %d", domain.ErrRemoteRejected, code)
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
}
