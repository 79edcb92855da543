package types

// SuccessEnvelope wraps every admin and health payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// StockSum is the bare count returned to the shop integration.
type StockSum struct {
	Sum int64 `json:"sum"`
}

// Deleted acknowledges a single-row delete.
type Deleted struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// DeletedCount acknowledges a bulk delete.
type DeletedCount struct {
	Deleted int64 `json:"deleted"`
}

// Health is the liveness/readiness body. Checks maps each dependency to "ok".
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
