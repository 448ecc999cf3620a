package files

import "github.com/Anuj5504/cloudbox/internal/apperr"

// authorize admits a caller acting on ownerID's records only when the two
// identities are equal.
func authorize(callerID, ownerID string) error {
	if callerID == "" {
		return apperr.Unauthorized("authentication required")
	}
	if ownerID != callerID {
		return apperr.Unauthorized("caller may only access their own files")
	}
	return nil
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}
