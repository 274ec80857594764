package campaign

import "errors"

// Sentinel errors for the service operations. Callers map these onto
// transport-level responses; wrapped detail is carried alongside.
var (
	// ErrValidation means the request itself is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrAuthorization means the caller may not act on this resource.
	ErrAuthorization = errors.New("not authorized")
	// ErrNotFound means the campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrQuotaExceeded means the account's daily send allowance cannot
	// cover the request today.
	ErrQuotaExceeded = errors.New("daily message limit exceeded")
	// ErrPreconditionFailed means the campaign's current status does
	// not permit the requested transition.
	ErrPreconditionFailed = errors.New("campaign status does not allow this operation")
	// ErrCredentialsMissing means the account has no gateway
	// credentials configured.
	ErrCredentialsMissing = errors.New("gateway credentials not configured")
	// ErrAccountPaused means sending is administratively suspended for
	// the account.
	ErrAccountPaused = errors.New("account is paused")
)
