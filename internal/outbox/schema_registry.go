package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// RegistryError is a non-2xx answer from the schema registry.
type RegistryError struct {
	Subject string
	Status  int
	Code    int    `json:"error_code"`
	Message string `json:"message"`
}

func (e *RegistryError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("schema registry: %s: %d %s", e.Subject, e.Status, e.Message)
	}
	return fmt.Sprintf("schema registry: %s: status %d", e.Subject, e.Status)
}

// NotFound reports whether the subject or its version is unknown to the registry.
func (e *RegistryError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// SchemaRegistryClient resolves schema IDs for the productivity topics against a
// Confluent-compatible registry, registering JSON schemas on first use.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient returns a client for baseURL with a 10s request timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the ID of the latest version of subject. A subject the
// registry has never seen is registered with schema first.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.send(ctx, http.MethodGet, subject, "/latest", nil)
	var regErr *RegistryError
	if !errors.As(err, &regErr) || !regErr.NotFound() {
		return id, err
	}

	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	return c.send(ctx, http.MethodPost, subject, "", body)
}

func (c *SchemaRegistryClient) send(ctx context.Context, method, subject, suffix string, body []byte) (int, error) {
	endpoint := c.baseURL + "/subjects/" + url.PathEscape(subject) + "/versions" + suffix
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", registryContentType)
	if body != nil {
		req.Header.Set("Content-Type", registryContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry: %s: %w", subject, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		regErr := &RegistryError{Subject: subject, Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(regErr)
		return 0, regErr
	}

	var out struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("schema registry: %s: decode response: %w", subject, err)
	}
	return out.ID, nil
}
