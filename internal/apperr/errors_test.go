package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_UnwrapsWrappedErrors(t *testing.T) {
	base := NotFound("user not found")
	wrapped := fmt.Errorf("presence: heartbeat: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("expected kind %s, got %s", KindNotFound, got)
	}
	if !errors.Is(wrapped, New(KindNotFound, "")) {
		t.Fatalf("expected errors.Is to match by kind")
	}
	if errors.Is(wrapped, New(KindPermissionDenied, "")) {
		t.Fatalf("expected errors.Is to reject other kinds")
	}
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal kind, got %s", got)
	}
	if got := PublicMessage(errors.New("db password leaked")); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
}

func TestGenerationFailed_KeepsDiagnostic(t *testing.T) {
	cause := errors.New("entropy source exhausted")
	err := GenerationFailed(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if got := PublicMessage(err); got != "key generation failed: entropy source exhausted" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:             http.StatusNotFound,
		KindPermissionDenied:     http.StatusForbidden,
		KindConflictAlreadySetUp: http.StatusConflict,
		KindGenerationFailed:     http.StatusInternalServerError,
		KindUnauthenticated:      http.StatusUnauthorized,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Fatalf("kind %s: expected %d, got %d", kind, want, got)
		}
	}
}
