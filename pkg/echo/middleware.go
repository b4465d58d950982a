// Package echo provides x402 payment middleware for the Echo framework.
package echo

import (
	"bytes"
	"log"
	"math/big"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	x402gin "github.com/x402-foundation/x402-facilitator/pkg/gin"

	"github.com/x402-foundation/x402-facilitator/pkg/facilitatorclient"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

// PaymentMiddlewareOptions is the options for the PaymentMiddleware.
type PaymentMiddlewareOptions struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	OutputSchema      map[string]any
	FacilitatorConfig *types.FacilitatorConfig
	CustomPaywallHTML string
	Resource          string
	ResourceRootURL   string
	Network           string
}

// Options is the type for the options for the PaymentMiddleware.
type Options func(*PaymentMiddlewareOptions)

// WithDescription sets the human-readable description of the resource.
func WithDescription(description string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Description = description
	}
}

// WithMimeType sets the mime type of the paid response.
func WithMimeType(mimeType string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MimeType = mimeType
	}
}

// WithMaxTimeoutSeconds sets the max timeout seconds.
func WithMaxTimeoutSeconds(maxTimeoutSeconds int) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.MaxTimeoutSeconds = maxTimeoutSeconds
	}
}

// WithOutputSchema sets the output schema advertised in requirements.
func WithOutputSchema(outputSchema map[string]any) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.OutputSchema = outputSchema
	}
}

// WithFacilitatorConfig sets the facilitator config.
func WithFacilitatorConfig(config *types.FacilitatorConfig) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.FacilitatorConfig = config
	}
}

// WithCustomPaywallHTML sets the paywall page served to browsers.
func WithCustomPaywallHTML(customPaywallHTML string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.CustomPaywallHTML = customPaywallHTML
	}
}

// WithResource overrides the resource URL advertised in requirements.
func WithResource(resource string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Resource = resource
	}
}

// WithResourceRootURL sets the root URL prepended to the request path when
// no explicit resource is configured.
func WithResourceRootURL(resourceRootURL string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.ResourceRootURL = resourceRootURL
	}
}

// WithNetwork sets the network explicitly.
func WithNetwork(network string) Options {
	return func(options *PaymentMiddlewareOptions) {
		options.Network = network
	}
}

type errorResponse struct {
	Error       any                          `json:"error"`
	Accepts     []*types.PaymentRequirements `json:"accepts,omitempty"`
	X402Version int                          `json:"x402Version"`
}

// PaymentMiddleware is the Echo middleware for a resource server using
// the x402 payment protocol.
// Amount: the decimal denominated amount to charge (ex: 0.01 for 1 cent)
func PaymentMiddleware(amount *big.Float, address string, opts ...Options) echo.MiddlewareFunc {
	options := &PaymentMiddlewareOptions{
		FacilitatorConfig: &types.FacilitatorConfig{
			URL: facilitatorclient.DefaultFacilitatorURL,
		},
		MaxTimeoutSeconds: types.DefaultMaxTimeoutSeconds,
	}

	for _, opt := range opts {
		opt(options)
	}

	facilitatorClient := facilitatorclient.NewFacilitatorClient(options.FacilitatorConfig)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			network := options.Network
			if network == "" {
				network = types.NetworkBaseSepolia
			}

			networkConfig, err := types.GetNetworkConfig(network)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, errorResponse{
					Error:       err.Error(),
					X402Version: types.X402Version,
				})
			}

			maxAmountRequired := x402gin.AmountToAssetUnits(amount, networkConfig.USDC.Decimals)

			userAgent := c.Request().Header.Get("User-Agent")
			acceptHeader := c.Request().Header.Get("Accept")
			isWebBrowser := strings.Contains(acceptHeader, "text/html") && strings.Contains(userAgent, "Mozilla")

			resource := options.Resource
			if resource == "" {
				resource = options.ResourceRootURL + c.Request().URL.Path
			}

			paymentRequirements := &types.PaymentRequirements{
				Scheme:            types.SchemeExact,
				Network:           network,
				MaxAmountRequired: maxAmountRequired.String(),
				Resource:          resource,
				Description:       options.Description,
				MimeType:          options.MimeType,
				PayTo:             address,
				MaxTimeoutSeconds: options.MaxTimeoutSeconds,
				Asset:             networkConfig.USDC.Address,
				OutputSchema:      options.OutputSchema,
			}
			paymentRequirements.SetUSDCInfo(networkConfig.Testnet)

			payment := c.Request().Header.Get("X-PAYMENT")
			paymentPayload, err := types.DecodePaymentPayloadFromBase64(payment)
			if err != nil {
				if isWebBrowser {
					html := options.CustomPaywallHTML
					if html == "" {
						html = defaultPaywallHTML
					}
					return c.HTML(http.StatusPaymentRequired, html)
				}

				return c.JSON(http.StatusPaymentRequired, errorResponse{
					Error:       "X-PAYMENT header is required",
					Accepts:     []*types.PaymentRequirements{paymentRequirements},
					X402Version: types.X402Version,
				})
			}

			response, err := facilitatorClient.Verify(paymentPayload, paymentRequirements)
			if err != nil {
				log.Printf("payment verification request failed: %v", err)
				return c.JSON(http.StatusInternalServerError, errorResponse{
					Error:       err.Error(),
					X402Version: types.X402Version,
				})
			}

			if !response.IsValid {
				return c.JSON(http.StatusPaymentRequired, errorResponse{
					Error:       response.InvalidReason,
					Accepts:     []*types.PaymentRequirements{paymentRequirements},
					X402Version: types.X402Version,
				})
			}

			// Intercept the response so settlement failures can still
			// replace the body with a 402.
			originalWriter := c.Response().Writer
			buffer := &bufferingWriter{ResponseWriter: originalWriter, statusCode: http.StatusOK}
			c.Response().Writer = buffer

			handlerErr := next(c)

			// The handler committed against the buffer, not the client.
			c.Response().Writer = originalWriter
			c.Response().Committed = false
			if handlerErr != nil {
				return handlerErr
			}

			settleResponse, err := facilitatorClient.Settle(paymentPayload, paymentRequirements)
			if err != nil {
				log.Printf("payment settlement request failed: %v", err)
				return c.JSON(http.StatusPaymentRequired, errorResponse{
					Error:       err.Error(),
					Accepts:     []*types.PaymentRequirements{paymentRequirements},
					X402Version: types.X402Version,
				})
			}

			// On-chain failure comes back as a 200 with success false;
			// the paid body must not leak on that path either.
			if !settleResponse.Success {
				reason := "settlement failed"
				if settleResponse.ErrorReason != nil {
					reason = *settleResponse.ErrorReason
				}
				return c.JSON(http.StatusPaymentRequired, errorResponse{
					Error:       reason,
					Accepts:     []*types.PaymentRequirements{paymentRequirements},
					X402Version: types.X402Version,
				})
			}

			settleResponseHeader, err := settleResponse.EncodeToBase64String()
			if err != nil {
				return c.JSON(http.StatusInternalServerError, errorResponse{
					Error:       err.Error(),
					X402Version: types.X402Version,
				})
			}

			originalWriter.Header().Set("X-PAYMENT-RESPONSE", settleResponseHeader)
			originalWriter.WriteHeader(buffer.statusCode)
			originalWriter.Write(buffer.body.Bytes())
			return nil
		}
	}
}

// bufferingWriter captures the handler's response without forwarding it.
type bufferingWriter struct {
	http.ResponseWriter
	body       bytes.Buffer
	statusCode int
	written    bool
}

func (w *bufferingWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

const defaultPaywallHTML = "<html><body>Payment Required</body></html>"
