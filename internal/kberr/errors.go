// Package kberr defines the error taxonomy shared across the knowledge-base core.
//
// Isolation and quota violations are always returned as one of these typed
// errors so callers can match with errors.Is / errors.As instead of string
// comparison. Upstream capability failures (vector store, completion API) are
// split into transient and permanent classes; only transient failures are
// eligible for retry.
package kberr

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied indicates a role or ownership check failed.
	// Never retried; surfaced to the caller as-is.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInviteInvalid covers not-found, expired, exhausted and revoked
	// invites. The reasons are deliberately collapsed into one message so
	// unauthenticated probing cannot distinguish them.
	ErrInviteInvalid = errors.New("invite is invalid or has expired")

	// ErrNameConflict indicates a unique-name (slug) collision that survived
	// the bounded internal retries.
	ErrNameConflict = errors.New("name already taken")

	// ErrNotFound indicates a missing organization, document, member or invite.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is the sentinel matched by QuotaError via errors.Is.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUpstreamTransient indicates a vector store or completion capability
	// timeout/unavailability. Eligible for bounded retry with backoff.
	ErrUpstreamTransient = errors.New("upstream temporarily unavailable")

	// ErrUpstreamPermanent indicates an invalid request to an upstream
	// capability. This is a bug: logged loudly, surfaced as internal error.
	ErrUpstreamPermanent = errors.New("upstream rejected request")
)

// QuotaKind identifies which limit was exceeded so the caller can produce an
// informative message.
type QuotaKind string

const (
	QuotaUserDaily     QuotaKind = "user_daily"
	QuotaOrgDaily      QuotaKind = "org_daily"
	QuotaDocumentCount QuotaKind = "document_count"
	QuotaMemberCount   QuotaKind = "member_count"
)

// QuotaError reports an exceeded quota together with the limit that applied.
type QuotaError struct {
	Kind  QuotaKind
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (limit %d)", e.Kind, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) match any QuotaError.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// QuotaExceeded constructs a QuotaError.
func QuotaExceeded(kind QuotaKind, limit int) error {
	return &QuotaError{Kind: kind, Limit: limit}
}

// QuotaKindOf extracts the quota kind from an error chain.
// Returns false if the error is not a quota rejection.
func QuotaKindOf(err error) (QuotaKind, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

// IsRetryable reports whether the error is a transient upstream failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTransient)
}
