package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false},
		{CodeForbidden, http.StatusForbidden, false, false},
		{CodeNotFound, http.StatusNotFound, false, true},
		{CodeConflict, http.StatusConflict, false, true},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true},
		{CodeIdempotency, http.StatusConflict, false, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, false},
		{CodeInternal, http.StatusInternalServerError, true, false},
		{CodeDependency, http.StatusServiceUnavailable, true, true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
	}

	if MetadataFor("SOMETHING_UNKNOWN").HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should render as internal errors")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "gateway unreachable")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if got := wrapped.Error(); got != "DEPENDENCY_ERROR: gateway unreachable: boom" {
		t.Fatalf("unexpected message %q", got)
	}
	if Wrap(CodeInternal, nil, "plain").Error() != "INTERNAL_ERROR: plain" {
		t.Fatalf("nil cause should render like New")
	}
}

func TestReasonOfNestedError(t *testing.T) {
	base := New(CodeConflict, "insufficient stock").WithDetails(map[string]any{
		"reason":     "stock_conflict",
		"product_id": "p-1",
	})
	err := fmt.Errorf("checkout: %w", base)

	if got := ReasonOf(err); got != "stock_conflict" {
		t.Fatalf("expected stock_conflict reason, got %q", got)
	}
	if !IsCode(err, CodeConflict) || IsCode(err, CodeValidation) {
		t.Fatalf("unexpected code match for %v", err)
	}
	if ReasonOf(stdErrors.New("plain")) != "" {
		t.Fatalf("plain errors carry no reason")
	}
}

func TestWithMergesDetails(t *testing.T) {
	err := New(CodeStateConflict, "illegal transition").
		With("reason", "illegal_transition").
		With("from", "delivering").
		With("to", "assigned")

	fields := err.Details()
	if len(fields) != 3 {
		t.Fatalf("expected three detail fields, got %#v", fields)
	}
	if err.Reason() != "illegal_transition" {
		t.Fatalf("unexpected reason %q", err.Reason())
	}

	merged := New(CodeValidation, "bad").
		WithDetails(map[string]any{"field": "qty"}).
		WithDetails(map[string]any{"reason": "bad_input"})
	if merged.Reason() != "bad_input" || merged.Details()["field"] != "qty" {
		t.Fatalf("WithDetails should merge, got %#v", merged.Details())
	}

	fields["reason"] = "tampered"
	if err.Reason() != "illegal_transition" {
		t.Fatalf("Details must return a copy")
	}
}

func TestRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":        {nil, false},
		"plain":      {stdErrors.New("db down"), true},
		"dependency": {New(CodeDependency, "gateway"), true},
		"conflict":   {fmt.Errorf("wrap: %w", New(CodeConflict, "stock")), false},
		"not found":  {New(CodeNotFound, "link"), false},
	}
	for name, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", name, tc.want, got)
		}
	}
}
