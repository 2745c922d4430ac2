package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/synapse-market/synapse-core/internal/adapter"
)

// contentEnvelope is the JSON document actually pinned. The timestamp makes
// every pin unique so Pinata never dedups two submissions of equal metadata.
type contentEnvelope struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// PinataClient implements Client against the Pinata pinning API
type PinataClient struct {
	apiURL     string
	gatewayURL string
	apiKey     string
	apiSecret  string
	httpClient adapter.HTTPClient
	clock      adapter.Clock
}

// NewPinataClient creates a Pinata-backed IPFS client
func NewPinataClient(apiURL, gatewayURL, apiKey, apiSecret string, httpClient adapter.HTTPClient, clock adapter.Clock) *PinataClient {
	return &PinataClient{
		apiURL:     apiURL,
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: httpClient,
		clock:      clock,
	}
}

func (c *PinataClient) authHeaders() map[string]string {
	return map[string]string{
		"pinata_api_key":        c.apiKey,
		"pinata_secret_api_key": c.apiSecret,
	}
}

// Pin uploads plan content wrapped in an envelope and returns its CID
func (c *PinataClient) Pin(ctx context.Context, content string) (string, error) {
	payload := struct {
		PinataContent contentEnvelope `json:"pinataContent"`
	}{
		PinataContent: contentEnvelope{
			Content:   content,
			Timestamp: c.clock.Now().UnixMilli(),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pin payload: %w", err)
	}

	respBody, err := c.httpClient.Post(ctx, c.apiURL+"/pinning/pinJSONToIPFS", "application/json", c.authHeaders(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to pin content: %w", err)
	}

	var resp struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}
	if resp.IpfsHash == "" {
		return "", errors.New("pin response carried no CID")
	}

	return resp.IpfsHash, nil
}

// Get retrieves pinned plan content by CID through the gateway
func (c *PinataClient) Get(ctx context.Context, cid string) (string, error) {
	var envelope contentEnvelope
	err := c.httpClient.Get(ctx, fmt.Sprintf("%s/ipfs/%s", c.gatewayURL, cid), nil, &envelope)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content %s: %w", cid, err)
	}
	return envelope.Content, nil
}

// Unpin removes a pin. A 404 means the CID was already unpinned and is
// treated as success.
func (c *PinataClient) Unpin(ctx context.Context, cid string) error {
	_, err := c.httpClient.Delete(ctx, fmt.Sprintf("%s/pinning/unpin/%s", c.apiURL, cid), c.authHeaders())
	if err != nil {
		var statusErr *adapter.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to unpin %s: %w", cid, err)
	}
	return nil
}

// IsPinned reports whether a CID is currently pinned
func (c *PinataClient) IsPinned(ctx context.Context, cid string) (bool, error) {
	var resp struct {
		Count int `json:"count"`
	}
	url := fmt.Sprintf("%s/data/pinList?hashContains=%s&status=pinned", c.apiURL, cid)
	if err := c.httpClient.Get(ctx, url, c.authHeaders(), &resp); err != nil {
		return false, fmt.Errorf("failed to query pin list: %w", err)
	}
	return resp.Count > 0, nil
}

// ensure interface compliance
var _ Client = (*PinataClient)(nil)

// DefaultTimeout is a reasonable HTTP timeout for pinning operations
const DefaultTimeout = 30 * time.Second
