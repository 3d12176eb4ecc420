package apperr

import "net/http"

// Kind classifies a domain failure for callers.
type Kind string

const (
	KindInternal             Kind = "INTERNAL"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindNotFound             Kind = "NOT_FOUND"
	KindGenerationFailed     Kind = "GENERATION_FAILED"
	KindPermissionDenied     Kind = "PERMISSION_DENIED"
	KindIntegrityMismatch    Kind = "INTEGRITY_MISMATCH"
	KindConflictAlreadySetUp Kind = "CONFLICT_ALREADY_SET_UP"
	KindUnauthenticated      Kind = "UNAUTHENTICATED"
	KindRateLimited          Kind = "RATE_LIMITED"
)

// HTTPStatus maps a kind to the response status used by the API layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindConflictAlreadySetUp:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindIntegrityMismatch:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
