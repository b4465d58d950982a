package types

// DiscoveryResource represents a discoverable x402-protected endpoint
// listed by GET /discovery/resources.
type DiscoveryResource struct {
	Resource    string                `json:"resource"`
	Type        string                `json:"type"`
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	LastUpdated string                `json:"lastUpdated"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

// DiscoveryListResponse represents the response from the discovery list
// endpoint.
type DiscoveryListResponse struct {
	X402Version int                 `json:"x402Version"`
	Items       []DiscoveryResource `json:"items"`
	Pagination  DiscoveryPagination `json:"pagination"`
}

// DiscoveryPagination contains pagination info for the discovery list.
type DiscoveryPagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// DiscoveryRegisterRequest represents the request to register a resource
// via POST /discovery/resources.
type DiscoveryRegisterRequest struct {
	Resource string                `json:"resource"`
	Type     string                `json:"type"`
	Accepts  []PaymentRequirements `json:"accepts"`
	Metadata map[string]any        `json:"metadata,omitempty"`
}

// ListDiscoveryResourcesOptions contains query options for listing
// discovery resources.
type ListDiscoveryResourcesOptions struct {
	// Type filters by resource type (currently only "http").
	Type string
	// Limit is the maximum number of items to return.
	Limit int
	// Offset is the number of items to skip.
	Offset int
}
