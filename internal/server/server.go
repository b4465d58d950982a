// Package server exposes the facilitator engine over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x402-foundation/x402-facilitator/pkg/facilitator"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

const requestIDHeader = "X-Request-ID"

// Server wires the verification engine and discovery registry into a gin
// router.
type Server struct {
	engine    *facilitator.Engine
	discovery *DiscoveryStore
	metrics   *metrics
	router    *gin.Engine
}

// New builds a server around an engine. The discovery registry starts
// empty.
func New(engine *facilitator.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:    engine,
		discovery: NewDiscoveryStore(),
		metrics:   newMetrics(),
		router:    gin.New(),
	}

	s.router.Use(gin.Recovery(), requestID())

	s.router.POST("/verify", s.handleVerify)
	s.router.POST("/settle", s.handleSettle)
	s.router.GET("/supported", s.handleSupported)
	s.router.GET("/discovery/resources", s.handleListDiscovery)
	s.router.POST("/discovery/resources", s.handleRegisterDiscovery)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestID tags every request with a correlation ID, honouring one the
// caller already set.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// paymentErrorStatus maps protocol and system error codes to HTTP
// statuses. Policy failures never reach here; they ride inside a 200.
func paymentErrorStatus(code string) int {
	switch code {
	case facilitator.ErrCodeInvalidPayment,
		facilitator.ErrCodeSchemeMismatch,
		facilitator.ErrCodeNetworkMismatch:
		return http.StatusBadRequest
	case facilitator.ErrCodeUnsupportedScheme,
		facilitator.ErrCodeUnsupportedNetwork:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abortPaymentError(c *gin.Context, err error) {
	var paymentErr *facilitator.PaymentError
	if errors.As(err, &paymentErr) {
		c.JSON(paymentErrorStatus(paymentErr.Code), errorBody{
			Error: paymentErr.Message,
			Code:  paymentErr.Code,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, errorBody{
		Error: err.Error(),
		Code:  facilitator.ErrCodeUnexpected,
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "invalid request body: " + err.Error(),
			Code:  facilitator.ErrCodeInvalidPayment,
		})
		return
	}
	if req.X402Version != types.X402Version {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "unsupported x402Version",
			Code:  facilitator.ErrCodeInvalidPayment,
		})
		return
	}

	resp, err := s.engine.Verify(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.metrics.verifyTotal.WithLabelValues("error").Inc()
		s.abortPaymentError(c, err)
		return
	}

	if resp.IsValid {
		s.metrics.verifyTotal.WithLabelValues("valid").Inc()
	} else {
		s.metrics.verifyTotal.WithLabelValues("invalid").Inc()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSettle(c *gin.Context) {
	var req types.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "invalid request body: " + err.Error(),
			Code:  facilitator.ErrCodeInvalidPayment,
		})
		return
	}
	if req.X402Version != types.X402Version {
		c.JSON(http.StatusBadRequest, errorBody{
			Error: "unsupported x402Version",
			Code:  facilitator.ErrCodeInvalidPayment,
		})
		return
	}

	resp, err := s.engine.Settle(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.metrics.settleTotal.WithLabelValues("error").Inc()
		s.abortPaymentError(c, err)
		return
	}

	if resp.Success {
		s.metrics.settleTotal.WithLabelValues("success").Inc()
	} else {
		s.metrics.settleTotal.WithLabelValues("failure").Inc()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSupported(c *gin.Context) {
	networks := types.SupportedNetworks()
	kinds := make([]types.SupportedKind, 0, len(networks))
	for _, network := range networks {
		kinds = append(kinds, types.SupportedKind{
			X402Version: types.X402Version,
			Scheme:      types.SchemeExact,
			Network:     network,
		})
	}

	c.JSON(http.StatusOK, types.SupportedResponse{Kinds: kinds})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:      "ok",
		Version:     Version,
		X402Version: types.X402Version,
	})
}
