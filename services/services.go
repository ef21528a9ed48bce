// ABOUTME: Shared plumbing for the external enrichment service clients.
// ABOUTME: Typed ServiceError carrying provider and status so stage boundaries can classify failures.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout bounds every provider call; in-flight calls are not
// forcibly aborted by the engine, so they must bound themselves.
const defaultTimeout = 30 * time.Second

// ServiceError is a typed failure from an external data provider. It is
// always caught at the stage boundary and converted into a recorded stage
// failure with the cause preserved.
type ServiceError struct {
	Provider string
	Status   int
	Message  string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// getJSON issues a GET and decodes the JSON response into out.
func getJSON(ctx context.Context, client *http.Client, provider, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	return doJSON(client, provider, req, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, provider, req, out)
}

func doJSON(client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServiceError{Provider: provider, Status: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}
