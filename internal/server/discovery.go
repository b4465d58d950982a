package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"

	"github.com/x402-foundation/x402-facilitator/pkg/facilitator"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

const (
	defaultDiscoveryLimit = 100
	maxDiscoveryLimit     = 100
)

// registerSchema validates discovery registrations before they enter the
// catalog.
const registerSchema = `{
	"type": "object",
	"required": ["resource", "type", "accepts"],
	"properties": {
		"resource": {"type": "string", "minLength": 1},
		"type": {"type": "string", "enum": ["http"]},
		"accepts": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["scheme", "network", "maxAmountRequired", "resource", "payTo", "asset"],
				"properties": {
					"scheme": {"type": "string"},
					"network": {"type": "string"},
					"maxAmountRequired": {"type": "string", "pattern": "^[0-9]+$"},
					"resource": {"type": "string"},
					"payTo": {"type": "string"},
					"asset": {"type": "string"}
				}
			}
		},
		"metadata": {"type": "object"}
	}
}`

// DiscoveryStore is an in-memory catalog of x402-protected resources,
// keyed by resource URL. Registrations are upserts.
type DiscoveryStore struct {
	mu        sync.RWMutex
	resources map[string]types.DiscoveryResource
	schema    *gojsonschema.Schema
}

// NewDiscoveryStore creates an empty catalog.
func NewDiscoveryStore() *DiscoveryStore {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(registerSchema))
	if err != nil {
		// The schema is a compile-time constant.
		panic(err)
	}

	return &DiscoveryStore{
		resources: make(map[string]types.DiscoveryResource),
		schema:    schema,
	}
}

// Register validates the raw JSON registration and upserts it.
func (d *DiscoveryStore) Register(raw []byte) (*types.DiscoveryResource, error) {
	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, facilitator.NewPaymentError(facilitator.ErrCodeInvalidPayment, "invalid registration JSON: "+err.Error(), nil)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, facilitator.NewPaymentError(facilitator.ErrCodeInvalidPayment, "invalid registration: "+strings.Join(details, "; "), nil)
	}

	var req types.DiscoveryRegisterRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, facilitator.NewPaymentError(facilitator.ErrCodeInvalidPayment, "invalid registration JSON: "+err.Error(), nil)
	}

	resource := types.DiscoveryResource{
		Resource:    req.Resource,
		Type:        req.Type,
		X402Version: types.X402Version,
		Accepts:     req.Accepts,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Metadata:    req.Metadata,
	}

	d.mu.Lock()
	d.resources[req.Resource] = resource
	d.mu.Unlock()

	return &resource, nil
}

// List returns a stable page of the catalog ordered by resource URL.
func (d *DiscoveryStore) List(opts types.ListDiscoveryResourcesOptions) types.DiscoveryListResponse {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultDiscoveryLimit
	}
	if limit > maxDiscoveryLimit {
		limit = maxDiscoveryLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	d.mu.RLock()
	all := make([]types.DiscoveryResource, 0, len(d.resources))
	for _, resource := range d.resources {
		if opts.Type != "" && resource.Type != opts.Type {
			continue
		}
		all = append(all, resource)
	}
	d.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Resource < all[j].Resource })

	total := len(all)
	items := []types.DiscoveryResource{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		items = all[offset:end]
	}

	return types.DiscoveryListResponse{
		X402Version: types.X402Version,
		Items:       items,
		Pagination: types.DiscoveryPagination{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	}
}

func (s *Server) handleListDiscovery(c *gin.Context) {
	opts := types.ListDiscoveryResourcesOptions{
		Type: c.Query("type"),
	}
	if limit := c.Query("limit"); limit != "" {
		value, err := strconv.Atoi(limit)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		opts.Limit = value
	}
	if offset := c.Query("offset"); offset != "" {
		value, err := strconv.Atoi(offset)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "invalid offset"})
			return
		}
		opts.Offset = value
	}

	c.JSON(http.StatusOK, s.discovery.List(opts))
}

func (s *Server) handleRegisterDiscovery(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "failed to read body"})
		return
	}

	resource, err := s.discovery.Register(raw)
	if err != nil {
		s.abortPaymentError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resource)
}
