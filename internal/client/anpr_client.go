package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"anpr-pipeline/internal/config"
	"anpr-pipeline/internal/domain/anpr"
)

type EventResponse struct {
	Status  string `json:"status"`
	EventID any    `json:"event_id"`
	Plate   string `json:"plate"`
}

// ANPRClient forwards recognized plates to the ANPR events service.
type ANPRClient struct {
	baseURL       string
	internalToken string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
}

func NewANPRClient(cfg *config.Config) *ANPRClient {
	return &ANPRClient{
		baseURL:       cfg.ExternalServices.ANPRServiceURL,
		internalToken: cfg.ExternalServices.ANPRInternalToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

func (c *ANPRClient) Name() string {
	return "anpr-service"
}

// Publish posts the event to /api/v1/anpr/events, retrying network errors.
func (c *ANPRClient) Publish(ctx context.Context, payload anpr.EventPayload) error {
	if c.baseURL == "" {
		return fmt.Errorf("ANPR service URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	url := c.baseURL + "/api/v1/anpr/events"

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.internalToken != "" {
			req.Header.Set("X-Internal-Token", c.internalToken)
		}

		resp, lastErr = c.httpClient.Do(req)
		if lastErr == nil {
			break
		}
		if attempt == c.maxRetries-1 {
			return fmt.Errorf("failed to execute request after %d attempts: %w", c.maxRetries, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ANPR service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out EventResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
