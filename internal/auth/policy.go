package auth

import "github.com/bortube/gateway/internal/apperr"

const opAuthorize = "authorize"

// Authorize is the ownership predicate applied to every mutation of a
// user-owned resource. An empty acting identity is unauthorized; any other
// mismatch is forbidden.
func Authorize(actingUserID, ownerID string) error {
	if actingUserID == "" {
		return apperr.Unauthorized(opAuthorize, "authentication required")
	}
	if ownerID == "" || actingUserID != ownerID {
		return apperr.Forbidden(opAuthorize, "resource belongs to another user")
	}
	return nil
}
