package errors

import "net/http"

// Code is the stable machine-readable identifier returned to API clients.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Stock allocation outcomes surfaced by the sell endpoint.
	CodeOutOfStock        Code = "OUT_OF_STOCK"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
)

// Metadata describes how a code is rendered over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	opaque    = false
	detailed  = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {http.StatusBadRequest, final, "validation failed", detailed},
	CodeUnauthorized:      {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:         {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:          {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:          {http.StatusConflict, final, "conflict detected", opaque},
	CodeStateConflict:     {http.StatusUnprocessableEntity, final, "state transition disallowed", detailed},
	CodeRateLimit:         {http.StatusTooManyRequests, retryable, "rate limit exceeded", opaque},
	CodeInternal:          {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:        {http.StatusServiceUnavailable, retryable, "dependency unavailable", detailed},
	CodeOutOfStock:        {http.StatusNotFound, retryable, "No products available", opaque},
	CodeInsufficientStock: {http.StatusBadRequest, final, "insufficient stock", detailed},
}

// MetadataFor returns the rendering rules for code, falling back to CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Retryable reports whether a client may repeat the failed call unchanged.
func Retryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
