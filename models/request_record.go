package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the outcome of a routed request
type RequestStatus string

const (
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusRejected  RequestStatus = "rejected" // invalid request, never routed
)

// RequestRecord is one routed completion in the request ledger: which model
// was asked for, which chain entry served it, and how the fallback walk went
type RequestRecord struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	RequestID      string        `json:"request_id" db:"request_id"` // gateway request ID
	Status         RequestStatus `json:"status" db:"status"`

	// Routing outcome
	RequestedModel string `json:"requested_model" db:"requested_model"`
	Provider       string `json:"provider" db:"provider"` // provider that served (or last tried)
	Model          string `json:"model" db:"model"`
	Attempts       int    `json:"attempts" db:"attempts"` // chain entries considered

	// Metrics
	PromptTokens     int   `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens" db:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms" db:"latency_ms"`

	// Error handling
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Request metadata
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RequestRecord model
func (RequestRecord) TableName() string {
	return "request_records"
}

// NewRequestRecord creates a record for a request entering the router
func NewRequestRecord(requestID, requestedModel string) *RequestRecord {
	return &RequestRecord{
		ID:             uuid.New(),
		RequestID:      requestID,
		RequestedModel: requestedModel,
		CreatedAt:      time.Now(),
	}
}

// MarkCompleted fills in a successful routing outcome
func (r *RequestRecord) MarkCompleted(provider, model string, attempts int) {
	r.Status = RequestStatusCompleted
	r.Provider = provider
	r.Model = model
	r.Attempts = attempts
}

// MarkFailed fills in a failed routing outcome
func (r *RequestRecord) MarkFailed(attempts int, err error) {
	r.Status = RequestStatusFailed
	r.Attempts = attempts
	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
	}
}

// MarkRejected records a request that never reached the chain
func (r *RequestRecord) MarkRejected(err error) {
	r.Status = RequestStatusRejected
	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
	}
}

// SetUsage records token accounting from the provider response
func (r *RequestRecord) SetUsage(promptTokens, completionTokens, totalTokens int) {
	r.PromptTokens = promptTokens
	r.CompletionTokens = completionTokens
	r.TotalTokens = totalTokens
}
