package facilitatorclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

func testPayload() *types.PaymentPayload {
	return &types.PaymentPayload{
		X402Version: types.X402Version,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkBaseSepolia,
		Payload: &types.ExactEvmPayload{
			Signature: "0xabcdef",
			Authorization: &types.ExactEvmPayloadAuthorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "1000000",
				ValidAfter:  "0",
				ValidBefore: "9999999999",
				Nonce:       "0x0011223344556677889900112233445566778899001122334455667788990011",
			},
		},
	}
}

func testRequirements() *types.PaymentRequirements {
	return &types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           types.NetworkBaseSepolia,
		MaxAmountRequired: "1000000",
		Resource:          "https://example.com/weather",
		Description:       "Weather data",
		MimeType:          "application/json",
		PayTo:             "0x2222222222222222222222222222222222222222",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
	}
}

func TestNewFacilitatorClientDefaults(t *testing.T) {
	client := NewFacilitatorClient(nil)
	assert.Equal(t, DefaultFacilitatorURL, client.URL)
	assert.NotNil(t, client.HTTPClient)
	assert.Nil(t, client.CreateAuthHeaders)
}

func TestNewFacilitatorClientTimeout(t *testing.T) {
	client := NewFacilitatorClient(&types.FacilitatorConfig{
		URL:     "https://facilitator.example.com",
		Timeout: func() time.Duration { return 5 * time.Second },
	})
	assert.Equal(t, 5*time.Second, client.HTTPClient.Timeout)
}

func TestVerify(t *testing.T) {
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		payer := "0x1111111111111111111111111111111111111111"
		json.NewEncoder(w).Encode(types.VerifyResponse{IsValid: true, Payer: &payer})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{URL: server.URL})
	resp, err := client.Verify(testPayload(), testRequirements())
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	require.NotNil(t, resp.Payer)

	var version int
	require.NoError(t, json.Unmarshal(gotBody["x402Version"], &version))
	assert.Equal(t, types.X402Version, version)
	assert.Contains(t, gotBody, "paymentPayload")
	assert.Contains(t, gotBody, "paymentRequirements")
}

func TestSettle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/settle", r.URL.Path)
		json.NewEncoder(w).Encode(types.SettleResponse{
			Success:     true,
			Transaction: "0xdeadbeef",
			Network:     types.NetworkBaseSepolia,
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{URL: server.URL})
	resp, err := client.Settle(testPayload(), testRequirements())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xdeadbeef", resp.Transaction)
}

func TestVerifyNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{URL: server.URL})
	resp, err := client.Verify(testPayload(), testRequirements())
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to verify payment")
}

func TestSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/supported", r.URL.Path)
		json.NewEncoder(w).Encode(types.SupportedResponse{
			Kinds: []types.SupportedKind{
				{X402Version: 1, Scheme: types.SchemeExact, Network: types.NetworkBase},
			},
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{URL: server.URL})
	resp, err := client.Supported()
	require.NoError(t, err)
	require.Len(t, resp.Kinds, 1)
	assert.Equal(t, types.NetworkBase, resp.Kinds[0].Network)
}

func TestListDiscoveryResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/discovery/resources", r.URL.Path)
		assert.Equal(t, "http", r.URL.Query().Get("type"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		json.NewEncoder(w).Encode(types.DiscoveryListResponse{
			X402Version: 1,
			Items:       []types.DiscoveryResource{},
			Pagination:  types.DiscoveryPagination{Limit: 10, Offset: 20, Total: 0},
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{URL: server.URL})
	resp, err := client.ListDiscoveryResources(&types.ListDiscoveryResourcesOptions{
		Type:   "http",
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Pagination.Limit)
	assert.Equal(t, 20, resp.Pagination.Offset)
}

func TestListDiscoveryResourcesNoOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		json.NewEncoder(w).Encode(types.DiscoveryListResponse{X402Version: 1})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{URL: server.URL})
	_, err := client.ListDiscoveryResources(nil)
	require.NoError(t, err)
}

func TestAuthHeadersPerEndpointClass(t *testing.T) {
	var verifyAuth, settleAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			verifyAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(types.VerifyResponse{IsValid: true})
		case "/settle":
			settleAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(types.SettleResponse{Success: true})
		}
	}))
	defer server.Close()

	client := NewFacilitatorClient(&types.FacilitatorConfig{
		URL: server.URL,
		CreateAuthHeaders: func() (map[string]map[string]string, error) {
			return map[string]map[string]string{
				"verify": {"Authorization": "Bearer verify-token"},
				"settle": {"Authorization": "Bearer settle-token"},
			}, nil
		},
	})

	_, err := client.Verify(testPayload(), testRequirements())
	require.NoError(t, err)
	_, err = client.Settle(testPayload(), testRequirements())
	require.NoError(t, err)

	assert.Equal(t, "Bearer verify-token", verifyAuth)
	assert.Equal(t, "Bearer settle-token", settleAuth)
}

func TestAuthHeadersError(t *testing.T) {
	client := NewFacilitatorClient(&types.FacilitatorConfig{
		URL: "http://localhost:0",
		CreateAuthHeaders: func() (map[string]map[string]string, error) {
			return nil, assert.AnError
		},
	})

	_, err := client.Verify(testPayload(), testRequirements())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth headers")
}
