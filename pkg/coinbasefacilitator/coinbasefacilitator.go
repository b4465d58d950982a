// Package coinbasefacilitator builds client configuration for the CDP
// hosted facilitator, including the bearer tokens its endpoints require.
package coinbasefacilitator

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

const (
	// CoinbaseFacilitatorBaseURL is the base URL for the CDP facilitator.
	CoinbaseFacilitatorBaseURL = "https://api.cdp.coinbase.com"
	// CoinbaseFacilitatorV2Route is the route prefix for x402 endpoints.
	CoinbaseFacilitatorV2Route = "/platform/v2/x402"

	sdkVersion  = "0.1.0"
	sdkLanguage = "go"
	tokenTTL    = 5 * time.Minute
)

type cdpClaims struct {
	jwt.Claims
	URI string `json:"uri"`
}

// createAuthHeader mints a short-lived HS256 bearer token bound to one
// endpoint path. The audience is the facilitator host without its scheme.
func createAuthHeader(apiKeyID, apiKeySecret, baseURL, path string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(apiKeySecret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	claims := cdpClaims{
		Claims: jwt.Claims{
			Issuer:   apiKeyID,
			Subject:  apiKeyID,
			Audience: jwt.Audience{strings.TrimPrefix(baseURL, "https://")},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		URI: path,
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return "Bearer " + token, nil
}

// createCorrelationHeader reports client telemetry as URL-encoded
// key=value pairs joined by commas.
func createCorrelationHeader() string {
	data := []struct{ key, value string }{
		{"sdk_version", sdkVersion},
		{"sdk_language", sdkLanguage},
		{"source", "x402"},
		{"source_version", sdkVersion},
	}

	pairs := make([]string, 0, len(data))
	for _, kv := range data {
		pairs = append(pairs, fmt.Sprintf("%s=%s", url.QueryEscape(kv.key), url.QueryEscape(kv.value)))
	}

	return strings.Join(pairs, ",")
}

// CreateCdpAuthHeaders returns a header factory for the CDP facilitator.
// Empty credentials fall back to the CDP_API_KEY_ID and
// CDP_API_KEY_SECRET environment variables.
func CreateCdpAuthHeaders(apiKeyID, apiKeySecret string) func() (map[string]map[string]string, error) {
	return func() (map[string]map[string]string, error) {
		keyID := apiKeyID
		keySecret := apiKeySecret
		if keyID == "" {
			keyID = os.Getenv("CDP_API_KEY_ID")
		}
		if keySecret == "" {
			keySecret = os.Getenv("CDP_API_KEY_SECRET")
		}
		if keyID == "" || keySecret == "" {
			return nil, fmt.Errorf("missing credentials: set CDP_API_KEY_ID and CDP_API_KEY_SECRET")
		}

		correlation := createCorrelationHeader()
		headers := make(map[string]map[string]string, 4)
		for action, path := range map[string]string{
			"verify":    CoinbaseFacilitatorV2Route + "/verify",
			"settle":    CoinbaseFacilitatorV2Route + "/settle",
			"supported": CoinbaseFacilitatorV2Route + "/supported",
			"list":      CoinbaseFacilitatorV2Route + "/discovery/resources",
		} {
			token, err := createAuthHeader(keyID, keySecret, CoinbaseFacilitatorBaseURL, path)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s auth header: %w", action, err)
			}
			headers[action] = map[string]string{
				"Authorization":       token,
				"Correlation-Context": correlation,
			}
		}

		return headers, nil
	}
}

// CreateFacilitatorConfig builds a facilitator config pointed at the CDP
// hosted facilitator with CDP auth headers attached.
func CreateFacilitatorConfig(apiKeyID, apiKeySecret string) *types.FacilitatorConfig {
	return &types.FacilitatorConfig{
		URL:               CoinbaseFacilitatorBaseURL + CoinbaseFacilitatorV2Route,
		CreateAuthHeaders: CreateCdpAuthHeaders(apiKeyID, apiKeySecret),
	}
}
