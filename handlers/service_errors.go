package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/llmfallback/llmfallback/providers"
	"github.com/llmfallback/llmfallback/routing"
	"github.com/llmfallback/llmfallback/utils"
	"go.uber.org/zap"
)

// errStreamingUnsupported rejects stream=true requests up front
var errStreamingUnsupported = errors.New("streaming responses are not supported")

// HandleRoutingError maps router and provider errors to HTTP responses
func HandleRoutingError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var allFailed *routing.AllFailedError
	var provErr *providers.ProviderError

	switch {
	case errors.Is(err, routing.ErrModelNotInChain):
		_ = utils.WriteNotFound(w, err.Error())

	case errors.As(err, &allFailed):
		// Exhausted the chain. Throttle-only exhaustion is a capacity
		// condition, not an upstream outage.
		if allFailed.OnlyThrottled() {
			_ = utils.WriteServiceUnavailable(w, "All providers are rate limited")
			return
		}
		_ = utils.WriteBadGateway(w, "All upstream models failed", attemptDetails(allFailed))

	case errors.As(err, &provErr) && provErr.StatusCode == http.StatusBadRequest:
		// The request itself is invalid; the router aborted without
		// falling through
		_ = utils.WriteBadRequest(w, provErr.Message, map[string]interface{}{
			"provider": provErr.Provider,
			"code":     provErr.Code,
		})

	case errors.Is(err, context.DeadlineExceeded):
		_ = utils.WriteJSON(w, http.StatusGatewayTimeout, utils.ErrorResponse{
			Error:   "gateway_timeout",
			Message: "Request timed out before a model could respond",
		})

	case errors.Is(err, context.Canceled):
		// The client went away; nothing useful to write, but finish the
		// exchange cleanly
		_ = utils.WriteJSON(w, 499, utils.ErrorResponse{
			Error:   "client_closed_request",
			Message: "Client closed the request",
		})

	default:
		logger.Error("unhandled routing error", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// attemptDetails summarizes a chain walk for the error body
func attemptDetails(allFailed *routing.AllFailedError) map[string]interface{} {
	attempts := make([]map[string]interface{}, len(allFailed.Attempts))
	for i, attempt := range allFailed.Attempts {
		entry := map[string]interface{}{
			"provider": attempt.Ref.Provider,
			"model":    attempt.Ref.Model,
		}
		if attempt.Skipped {
			entry["skipped"] = string(attempt.SkipReason)
		} else if attempt.Error != "" {
			entry["error"] = attempt.Error
		}
		attempts[i] = entry
	}
	return map[string]interface{}{"attempts": attempts}
}
