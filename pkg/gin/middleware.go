// Package gin provides x402 payment middleware for the Gin framework.
package gin

import (
	"log"
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

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

// PaymentMiddleware is the Gin middleware for a resource server using the
// x402 payment protocol.
// Amount: the decimal denominated amount to charge (ex: 0.01 for 1 cent)
func PaymentMiddleware(amount *big.Float, address string, opts ...Options) gin.HandlerFunc {
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

	return func(c *gin.Context) {
		network := options.Network
		if network == "" {
			network = types.NetworkBaseSepolia
		}

		networkConfig, err := types.GetNetworkConfig(network)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": types.X402Version,
			})
			return
		}

		maxAmountRequired := AmountToAssetUnits(amount, networkConfig.USDC.Decimals)

		userAgent := c.GetHeader("User-Agent")
		acceptHeader := c.GetHeader("Accept")
		isWebBrowser := strings.Contains(acceptHeader, "text/html") && strings.Contains(userAgent, "Mozilla")

		resource := options.Resource
		if resource == "" {
			resource = options.ResourceRootURL + c.Request.URL.Path
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

		payment := c.GetHeader("X-PAYMENT")
		paymentPayload, err := types.DecodePaymentPayloadFromBase64(payment)
		if err != nil {
			if isWebBrowser {
				html := options.CustomPaywallHTML
				if html == "" {
					html = defaultPaywallHTML
				}
				c.Abort()
				c.Data(http.StatusPaymentRequired, "text/html", []byte(html))
				return
			}

			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":       "X-PAYMENT header is required",
				"accepts":     []*types.PaymentRequirements{paymentRequirements},
				"x402Version": types.X402Version,
			})
			return
		}

		response, err := facilitatorClient.Verify(paymentPayload, paymentRequirements)
		if err != nil {
			log.Printf("payment verification request failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": types.X402Version,
			})
			return
		}

		if !response.IsValid {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":       response.InvalidReason,
				"accepts":     []*types.PaymentRequirements{paymentRequirements},
				"x402Version": types.X402Version,
			})
			return
		}

		// Intercept the response so settlement failures can still replace
		// the body with a 402.
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &strings.Builder{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		if c.IsAborted() {
			return
		}

		settleResponse, err := facilitatorClient.Settle(paymentPayload, paymentRequirements)
		if err != nil {
			log.Printf("payment settlement request failed: %v", err)
			c.Writer = writer.ResponseWriter
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":       err.Error(),
				"accepts":     []*types.PaymentRequirements{paymentRequirements},
				"x402Version": types.X402Version,
			})
			return
		}

		// On-chain failure comes back as a 200 with success false; the
		// paid body must not leak on that path either.
		if !settleResponse.Success {
			reason := "settlement failed"
			if settleResponse.ErrorReason != nil {
				reason = *settleResponse.ErrorReason
			}
			c.Writer = writer.ResponseWriter
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":       reason,
				"accepts":     []*types.PaymentRequirements{paymentRequirements},
				"x402Version": types.X402Version,
			})
			return
		}

		settleResponseHeader, err := settleResponse.EncodeToBase64String()
		if err != nil {
			c.Writer = writer.ResponseWriter
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": types.X402Version,
			})
			return
		}

		c.Header("X-PAYMENT-RESPONSE", settleResponseHeader)
		c.Writer = writer.ResponseWriter
		c.Writer.WriteHeader(writer.statusCode)
		c.Writer.Write([]byte(writer.body.String()))
	}
}

// responseWriter buffers the handler's response until settlement succeeds.
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return len(b), nil
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

const defaultPaywallHTML = "<html><body>Payment Required</body></html>"

// AmountToAssetUnits converts a human-readable amount into base units
// using the token's decimals, rounding to the nearest unit.
func AmountToAssetUnits(amount *big.Float, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaleFloat := new(big.Float).SetPrec(256).SetInt(scale)
	amountFloat := new(big.Float).SetPrec(256).Set(amount)
	scaled := new(big.Float).Mul(amountFloat, scaleFloat)
	// Int truncates toward zero, which would turn a binary-inexact
	// 0.000001 into zero units. Nudge up half a unit first.
	scaled.Add(scaled, big.NewFloat(0.5))
	res, _ := scaled.Int(nil)
	return res
}
