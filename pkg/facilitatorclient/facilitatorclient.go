// Package facilitatorclient is the HTTP client for a remote x402
// facilitator: verify, settle, supported kinds and discovery listing.
package facilitatorclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

const (
	// DefaultFacilitatorURL is the default URL for the hosted x402
	// facilitator service.
	DefaultFacilitatorURL = "https://x402.org/facilitator"

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"

	authHeaderVerify    = "verify"
	authHeaderSettle    = "settle"
	authHeaderSupported = "supported"
	authHeaderList      = "list"
)

// FacilitatorClient talks to one facilitator. CreateAuthHeaders, when
// set, produces per-endpoint-class header maps that are merged into the
// outbound request for that class only.
type FacilitatorClient struct {
	URL               string
	HTTPClient        *http.Client
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// NewFacilitatorClient creates a new facilitator client.
func NewFacilitatorClient(config *types.FacilitatorConfig) *FacilitatorClient {
	if config == nil {
		config = &types.FacilitatorConfig{
			URL: DefaultFacilitatorURL,
		}
	}

	httpCli := &http.Client{}
	if config.Timeout != nil {
		httpCli.Timeout = config.Timeout()
	}

	return &FacilitatorClient{
		URL:               config.URL,
		HTTPClient:        httpCli,
		CreateAuthHeaders: config.CreateAuthHeaders,
	}
}

// Verify sends a payment verification request to the facilitator.
func (c *FacilitatorClient) Verify(payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	var verifyResp types.VerifyResponse
	if err := c.postPayment("verify", authHeaderVerify, payload, requirements, &verifyResp); err != nil {
		return nil, err
	}

	return &verifyResp, nil
}

// Settle sends a payment settlement request to the facilitator.
func (c *FacilitatorClient) Settle(payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	var settleResp types.SettleResponse
	if err := c.postPayment("settle", authHeaderSettle, payload, requirements, &settleResp); err != nil {
		return nil, err
	}

	return &settleResp, nil
}

func (c *FacilitatorClient) postPayment(endpoint, authKey string, payload *types.PaymentPayload, requirements *types.PaymentRequirements, out any) error {
	reqBody := map[string]any{
		"x402Version":         types.X402Version,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/%s", c.URL, endpoint), bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := c.addAuthHeader(req, authKey); err != nil {
		return fmt.Errorf("failed to apply %s auth headers: %w", endpoint, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to %s payment: %s", endpoint, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}

// Supported retrieves the scheme-network pairs the facilitator supports.
func (c *FacilitatorClient) Supported() (*types.SupportedResponse, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/supported", c.URL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supported request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := c.addAuthHeader(req, authHeaderSupported); err != nil {
		return nil, fmt.Errorf("failed to apply supported auth headers: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send supported request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get supported payment kinds: %s", resp.Status)
	}

	var supportedResp types.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}

	return &supportedResp, nil
}

// ListDiscoveryResources retrieves discoverable x402 resources. The
// optional "list" auth header class applies when CreateAuthHeaders
// provides one.
func (c *FacilitatorClient) ListDiscoveryResources(options *types.ListDiscoveryResourcesOptions) (*types.DiscoveryListResponse, error) {
	endpoint := fmt.Sprintf("%s/discovery/resources", c.URL)

	if encoded := encodeDiscoveryQuery(options); encoded != "" {
		endpoint = fmt.Sprintf("%s?%s", endpoint, encoded)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)

	if err := c.addAuthHeader(req, authHeaderList); err != nil {
		return nil, fmt.Errorf("failed to apply discovery auth headers: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list discovery resources: %s", resp.Status)
	}

	var discoveryResp types.DiscoveryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&discoveryResp); err != nil {
		return nil, fmt.Errorf("failed to decode discovery response: %w", err)
	}

	return &discoveryResp, nil
}

func (c *FacilitatorClient) addAuthHeader(req *http.Request, key string) error {
	if c.CreateAuthHeaders == nil {
		return nil
	}

	headers, err := c.CreateAuthHeaders()
	if err != nil {
		return fmt.Errorf("create auth headers: %w", err)
	}

	actionHeaders, ok := headers[key]
	if !ok {
		return nil
	}

	for headerKey, value := range actionHeaders {
		req.Header.Set(headerKey, value)
	}

	return nil
}

func encodeDiscoveryQuery(options *types.ListDiscoveryResourcesOptions) string {
	if options == nil {
		return ""
	}

	values := url.Values{}

	if options.Type != "" {
		values.Set("type", options.Type)
	}
	if options.Limit > 0 {
		values.Set("limit", strconv.Itoa(options.Limit))
	}
	if options.Offset > 0 {
		values.Set("offset", strconv.Itoa(options.Offset))
	}

	return values.Encode()
}
