package kiseki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Exporter delivers a batch to a collector. Export returns an error on
// delivery failure; the SDK does not retry automatically — the failed batch
// stays in the buffer for the next flush.
type Exporter interface {
	Export(ctx context.Context, batch *Batch) error
}

// HTTPExporter posts batches to a kiseki collector as JSON, authenticating
// with an agent-id/API-key token exchange. All methods are safe for
// concurrent use.
type HTTPExporter struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewHTTPExporter creates an exporter for the collector at baseURL. If
// httpClient is nil, a default client with a 30-second timeout is used.
func NewHTTPExporter(baseURL, agentID, apiKey string, httpClient *http.Client) *HTTPExporter {
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExporter{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, agentID, apiKey, httpClient),
	}
}

// Export sends the batch to POST /v1/batch.
func (e *HTTPExporter) Export(ctx context.Context, batch *Batch) error {
	encoded, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("kiseki: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/batch", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("kiseki: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := e.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("kiseki: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kiseki: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	return nil
}

// apiErrorEnvelope is the collector's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
