package errors

import (
	"net/http"
	"strconv"
	"time"
)

// ErrorCode represents a standardized error code. The first three digits are the HTTP status.
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidJSON      ErrorCode = "40003"
	ErrMissingParameter ErrorCode = "40004"
	ErrInvalidParameter ErrorCode = "40005"

	// Authentication errors (401xx)
	ErrUnauthorized ErrorCode = "40100"
	ErrInvalidToken ErrorCode = "40101"
	ErrTokenExpired ErrorCode = "40102"
	ErrMissingToken ErrorCode = "40103"

	// Authorization errors (403xx)
	ErrForbidden     ErrorCode = "40301"
	ErrAdminRequired ErrorCode = "40302"

	// Resource errors (404xx)
	ErrNotFound        ErrorCode = "40400"
	ErrReviewNotFound  ErrorCode = "40401"
	ErrRunNotFound     ErrorCode = "40402"
	ErrProductNotFound ErrorCode = "40403"

	// Conflict errors (409xx)
	ErrPipelineBusy ErrorCode = "40901"

	// Rate limit errors (429xx)
	ErrRateLimited ErrorCode = "42901"

	// Server errors (500xx)
	ErrInternalServer ErrorCode = "50001"
	ErrDatabaseError  ErrorCode = "50002"
	ErrCacheError     ErrorCode = "50003"
	ErrDocumentError  ErrorCode = "50004"
	ErrPipelineFailed ErrorCode = "50005"

	// Availability errors (503xx, 504xx)
	ErrServiceUnavailable ErrorCode = "50301"
	ErrStoreTimeout       ErrorCode = "50401"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
	Timestamp  time.Time `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error carrying details
func (e *APIError) WithDetails(details any) *APIError {
	out := *e
	out.Details = details
	out.Timestamp = time.Now().UTC()
	return &out
}

// WithMessage returns a copy of the error with a different message
func (e *APIError) WithMessage(message string) *APIError {
	out := *e
	out.Message = message
	out.Timestamp = time.Now().UTC()
	return &out
}

// ErrorBody is the error object inside an ErrorResponse
type ErrorBody struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         ErrorBody `json:"error"`
	RequestID     string    `json:"request_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewErrorResponse builds the response body for err
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) *ErrorResponse {
	ts := err.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ErrorResponse{
		Error: ErrorBody{
			Code:      err.Code,
			Message:   err.Message,
			Details:   err.Details,
			Timestamp: ts.Format(time.RFC3339),
			Path:      path,
			Method:    method,
		},
		RequestID:     requestID,
		CorrelationID: correlationID,
	}
}

// GetHTTPStatusFromCode derives the HTTP status from the code's first three digits
func GetHTTPStatusFromCode(code ErrorCode) int {
	if len(code) < 3 {
		return http.StatusInternalServerError
	}
	status, err := strconv.Atoi(string(code[:3]))
	if err != nil || status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

// IsRetryable reports whether the client may retry the same request later
func IsRetryable(err *APIError) bool {
	switch err.Code {
	case ErrRateLimited, ErrPipelineBusy, ErrServiceUnavailable, ErrStoreTimeout:
		return true
	}
	return false
}

// IsClientError reports whether err maps to a 4xx status
func IsClientError(err *APIError) bool {
	return err.HTTPStatus >= 400 && err.HTTPStatus < 500
}

// IsServerError reports whether err maps to a 5xx status
func IsServerError(err *APIError) bool {
	return err.HTTPStatus >= 500 && err.HTTPStatus < 600
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       ErrUnauthorized,
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidTokenError = &APIError{
		Code:       ErrInvalidToken,
		Message:    "Invalid token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrMissingTokenError = &APIError{
		Code:       ErrMissingToken,
		Message:    "Authorization header is required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAdminRequiredError = &APIError{
		Code:       ErrAdminRequired,
		Message:    "Admin role required",
		HTTPStatus: http.StatusForbidden,
	}

	ErrReviewNotFoundError = &APIError{
		Code:       ErrReviewNotFound,
		Message:    "Review not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRunNotFoundError = &APIError{
		Code:       ErrRunNotFound,
		Message:    "Pipeline run not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrProductNotFoundError = &APIError{
		Code:       ErrProductNotFound,
		Message:    "No reviews found for product",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPipelineBusyError = &APIError{
		Code:       ErrPipelineBusy,
		Message:    "A pipeline run is already in progress",
		HTTPStatus: http.StatusConflict,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDatabaseErrorError = &APIError{
		Code:       ErrDatabaseError,
		Message:    "Warehouse query failed",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDocumentErrorError = &APIError{
		Code:       ErrDocumentError,
		Message:    "Document store query failed",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailableError = &APIError{
		Code:       ErrServiceUnavailable,
		Message:    "Service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrStoreTimeoutError = &APIError{
		Code:       ErrStoreTimeout,
		Message:    "Store did not respond in time",
		HTTPStatus: http.StatusGatewayTimeout,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidParameterError reports a malformed path or query parameter
func NewInvalidParameterError(name, value string) *APIError {
	return &APIError{
		Code:       ErrInvalidParameter,
		Message:    "Invalid parameter: " + name,
		Details:    map[string]string{"parameter": name, "value": value},
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRateLimitError creates a rate limit error with the retry delay in details
func NewRateLimitError(retryAfterSeconds int64) *APIError {
	return &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		Details:    map[string]int64{"retry_after_seconds": retryAfterSeconds},
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewPipelineFailedError reports a run that finished with an error
func NewPipelineFailedError(runID, reason string) *APIError {
	return &APIError{
		Code:       ErrPipelineFailed,
		Message:    "Pipeline run failed",
		Details:    map[string]interface{}{"run_id": runID, "error": reason},
		HTTPStatus: http.StatusInternalServerError,
	}
}
