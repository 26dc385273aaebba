// Package enrich implements the external enrichment stage: resolving
// queued property addresses through the Parcl Labs API and landing the
// selected sale and rental events as raw parcel facts.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ClientConfig holds the external API settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultClientConfig returns the production API defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.parcllabs.com",
		Timeout: 30 * time.Second,
	}
}

// ClientConfigFromEnv loads the client configuration from environment
// variables, falling back to defaults.
func ClientConfigFromEnv() ClientConfig {
	cfg := DefaultClientConfig()
	if v := os.Getenv("PARCL_API_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PARCL_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("PARCL_HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg
}

// APIError is a non-success response from the external API. Callers
// distinguish it from transport failures to decide whether to skip one
// property or abort the batch.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parcl api status %d: %s", e.StatusCode, e.Body)
}

// Client speaks to the Parcl Labs property API.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient creates a client from the configuration.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	return &Client{
		base:   cfg.BaseURL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// AddressQuery identifies one property address to resolve.
type AddressQuery struct {
	Address           string `json:"address"`
	City              string `json:"city"`
	StateAbbreviation string `json:"state_abbreviation"`
	ZipCode           string `json:"zip_code"`
}

// PropertyResult is one resolved property from an address search.
type PropertyResult struct {
	ParclPropertyID   int64    `json:"parcl_property_id"`
	Bedrooms          *int     `json:"bedrooms"`
	Bathrooms         *float64 `json:"bathrooms"`
	SquareFootage     *int     `json:"square_footage"`
	YearBuilt         *int     `json:"year_built"`
	Address           string   `json:"address"`
	City              string   `json:"city"`
	StateAbbreviation string   `json:"state_abbreviation"`
	County            string   `json:"county"`
	ZipCode           string   `json:"zip_code"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
}

// Event is one entry in a property's event history. EventDate is the
// API's ISO date string.
type Event struct {
	EventType       string  `json:"event_type"`
	EventName       string  `json:"event_name"`
	EventDate       string  `json:"event_date"`
	EntityOwnerName *string `json:"entity_owner_name"`
	Price           float64 `json:"price"`
}

// SearchAddress resolves an address to zero or more properties.
func (c *Client) SearchAddress(ctx context.Context, query AddressQuery) ([]PropertyResult, error) {
	var out struct {
		Items []PropertyResult `json:"items"`
	}
	// The search endpoint takes a batch of addresses; one per call here.
	if err := c.post(ctx, "/v1/property/search_address", []AddressQuery{query}, &out); err != nil {
		return nil, fmt.Errorf("search address: %w", err)
	}
	return out.Items, nil
}

// EventHistory fetches a property's event history from startDate on.
func (c *Client) EventHistory(ctx context.Context, parclPropertyID int64, startDate time.Time) ([]Event, error) {
	body := map[string]any{
		"parcl_property_id": []string{strconv.FormatInt(parclPropertyID, 10)},
		"start_date":        startDate.Format("2006-01-02"),
	}
	var out struct {
		Items []Event `json:"items"`
	}
	if err := c.post(ctx, "/v1/property/event_history", body, &out); err != nil {
		return nil, fmt.Errorf("event history for %d: %w", parclPropertyID, err)
	}
	return out.Items, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
