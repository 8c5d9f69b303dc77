package errors

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"pgregory.net/rapid"
)

var catalog = []*APIError{
	ErrUnauthorizedError, ErrInvalidTokenError, ErrTokenExpiredError, ErrMissingTokenError,
	ErrForbiddenError, ErrAdminRequiredError,
	ErrReviewNotFoundError, ErrRunNotFoundError, ErrProductNotFoundError,
	ErrPipelineBusyError, ErrRateLimitedError,
	ErrInternalServerError, ErrDatabaseErrorError, ErrDocumentErrorError,
	ErrServiceUnavailableError, ErrStoreTimeoutError,
}

func TestCatalog_StatusMatchesCodePrefix(t *testing.T) {
	for _, e := range catalog {
		if got := GetHTTPStatusFromCode(e.Code); got != e.HTTPStatus {
			t.Errorf("%s: code maps to %d but error carries %d", e.Code, got, e.HTTPStatus)
		}
		if e.Message == "" {
			t.Errorf("%s has no message", e.Code)
		}
	}
}

func TestGetHTTPStatusFromCode_Malformed(t *testing.T) {
	for _, code := range []ErrorCode{"", "4", "abc01", "20001", "99901"} {
		if got := GetHTTPStatusFromCode(code); got != http.StatusInternalServerError {
			t.Errorf("GetHTTPStatusFromCode(%q) = %d, want 500", code, got)
		}
	}
}

// TestProperty_ErrorResponse_CarriesRequestContext tests the error envelope
// *For any* catalogued error and request, NewErrorResponse SHALL keep the code and message
// and SHALL carry the request id, correlation id, path, method and an RFC3339 timestamp.
func TestProperty_ErrorResponse_CarriesRequestContext(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		apiErr := rapid.SampledFrom(catalog).Draw(rt, "error")
		requestID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}`).Draw(rt, "requestID")
		correlationID := rapid.StringMatching(`[a-z]{0,12}`).Draw(rt, "correlationID")
		path := rapid.SampledFrom([]string{"/api/v1/reviews/42", "/api/v1/products/7/summary", "/api/v1/admin/pipeline/runs"}).Draw(rt, "path")
		method := rapid.SampledFrom([]string{"GET", "POST"}).Draw(rt, "method")

		resp := NewErrorResponse(apiErr, requestID, correlationID, path, method)

		if resp.Error.Code != apiErr.Code || resp.Error.Message != apiErr.Message {
			t.Fatalf("PROPERTY VIOLATION: body %+v does not match %+v", resp.Error, apiErr)
		}
		if resp.RequestID != requestID || resp.CorrelationID != correlationID {
			t.Fatalf("PROPERTY VIOLATION: ids %q/%q, want %q/%q", resp.RequestID, resp.CorrelationID, requestID, correlationID)
		}
		if resp.Error.Path != path || resp.Error.Method != method {
			t.Fatalf("PROPERTY VIOLATION: path/method %s %s, want %s %s", resp.Error.Method, resp.Error.Path, method, path)
		}
		if _, err := time.Parse(time.RFC3339, resp.Error.Timestamp); err != nil {
			t.Fatalf("PROPERTY VIOLATION: timestamp %q is not RFC3339", resp.Error.Timestamp)
		}
	})
}

func TestErrorResponse_OmitsEmptyCorrelationID(t *testing.T) {
	body, err := json.Marshal(NewErrorResponse(ErrRunNotFoundError, "req-1", "", "/api/v1/runs/x", "GET"))
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if _, ok := raw["correlation_id"]; ok {
		t.Errorf("Empty correlation_id should be omitted: %s", body)
	}
	if string(raw["request_id"]) != `"req-1"` {
		t.Errorf("request_id = %s, want \"req-1\"", raw["request_id"])
	}
}

func TestRetryableCodes(t *testing.T) {
	retryable := map[ErrorCode]bool{
		ErrPipelineBusy:       true,
		ErrRateLimited:        true,
		ErrServiceUnavailable: true,
		ErrStoreTimeout:       true,
	}
	for _, e := range catalog {
		if got := IsRetryable(e); got != retryable[e.Code] {
			t.Errorf("IsRetryable(%s) = %v, want %v", e.Code, got, retryable[e.Code])
		}
		if IsClientError(e) == IsServerError(e) {
			t.Errorf("%s should be exactly one of client or server error", e.Code)
		}
	}
}

func TestPipelineErrors(t *testing.T) {
	if ErrPipelineBusyError.HTTPStatus != http.StatusConflict || !IsClientError(ErrPipelineBusyError) {
		t.Errorf("Busy pipeline should be a 409 client error, got %d", ErrPipelineBusyError.HTTPStatus)
	}

	failed := NewPipelineFailedError("run-3", "insert reviews 0-500: disk full")
	if failed.Code != ErrPipelineFailed || failed.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("Unexpected failed-run error: %+v", failed)
	}
	if IsRetryable(failed) {
		t.Error("A failed run should not be reported as retryable")
	}
	details, ok := failed.Details.(map[string]interface{})
	if !ok || details["run_id"] != "run-3" || details["error"] != "insert reviews 0-500: disk full" {
		t.Errorf("Unexpected details: %#v", failed.Details)
	}
}

// TestProperty_RateLimitError_CarriesRetryAfter tests the rate limit error
// *For any* retry delay, NewRateLimitError SHALL report 429 with the delay under retry_after_seconds.
func TestProperty_RateLimitError_CarriesRetryAfter(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seconds := rapid.Int64Range(1, 86400).Draw(rt, "seconds")
		e := NewRateLimitError(seconds)

		if e.HTTPStatus != http.StatusTooManyRequests || e.Code != ErrRateLimited || !IsRetryable(e) {
			t.Fatalf("PROPERTY VIOLATION: unexpected rate limit error %+v", e)
		}
		details, ok := e.Details.(map[string]int64)
		if !ok || details["retry_after_seconds"] != seconds {
			t.Fatalf("PROPERTY VIOLATION: details %#v, want retry_after_seconds=%d", e.Details, seconds)
		}
	})
}

func TestWithHelpers_DoNotMutateShared(t *testing.T) {
	custom := ErrServiceUnavailableError.WithMessage("Scoring is not configured")
	if ErrServiceUnavailableError.Message != "Service unavailable" {
		t.Fatalf("WithMessage changed the shared error: %q", ErrServiceUnavailableError.Message)
	}
	if custom.Message != "Scoring is not configured" || custom.Code != ErrServiceUnavailable || custom.Timestamp.IsZero() {
		t.Errorf("Unexpected copy: %+v", custom)
	}

	detailed := ErrReviewNotFoundError.WithDetails(map[string]int64{"review_id": 42})
	if ErrReviewNotFoundError.Details != nil {
		t.Fatal("WithDetails changed the shared error")
	}
	if detailed.Details == nil || detailed.HTTPStatus != http.StatusNotFound {
		t.Errorf("Unexpected copy: %+v", detailed)
	}
}

func TestParameterErrors(t *testing.T) {
	e := NewInvalidParameterError("limit", "-3")
	details, ok := e.Details.(map[string]string)
	if e.Code != ErrInvalidParameter || e.HTTPStatus != http.StatusBadRequest || !ok || details["value"] != "-3" {
		t.Errorf("Unexpected parameter error: %+v", e)
	}

	v := NewValidationError(map[string]int{"max_reviews": 500})
	if v.Code != ErrValidationFailed || v.HTTPStatus != http.StatusBadRequest || v.Details == nil {
		t.Errorf("Unexpected validation error: %+v", v)
	}
	if e.Error() != "Invalid parameter: limit" {
		t.Errorf("Error() = %q", e.Error())
	}
}
