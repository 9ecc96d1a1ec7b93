package services

import (
	"net/http"

	apperrors "github.com/campushq/rolegate/pkg/errors"
)

var (
	// ErrRequestNotFound indicates the role request does not exist.
	ErrRequestNotFound = apperrors.New("ROLE_REQUEST_NOT_FOUND", "Role request not found", http.StatusNotFound)
	// ErrRequestNotPending indicates the role request was already resolved.
	ErrRequestNotPending = apperrors.New("ROLE_REQUEST_NOT_PENDING", "Role request has already been resolved", http.StatusConflict)
	// ErrRequestExpired indicates the role request lapsed before review.
	ErrRequestExpired = apperrors.New("ROLE_REQUEST_EXPIRED", "Role request has expired", http.StatusConflict)
	// ErrActivityNotFound indicates the suspicious activity record does not exist.
	ErrActivityNotFound = apperrors.New("SUSPICIOUS_ACTIVITY_NOT_FOUND", "Suspicious activity not found", http.StatusNotFound)
	// ErrInconsistentState signals a revoke that was not followed by a
	// successful assign. This is a data-integrity emergency, not an ordinary
	// failure; it must never be swallowed.
	ErrInconsistentState = apperrors.New("ROLE_STATE_INCONSISTENT", "Role change failed after revoking the previous role", http.StatusInternalServerError)
)
