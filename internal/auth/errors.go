package auth

import "errors"

// Sentinel errors returned by the auth service. Handlers map these onto
// HTTP status codes; anything else is treated as an internal error.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidTOTP        = errors.New("invalid TOTP code")
	ErrTOTPNotSetup       = errors.New("TOTP setup has not been started")
	ErrTOTPNotEnabled     = errors.New("TOTP is not enabled")
	ErrAccountNotFound    = errors.New("account not found")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrApprovalInvalid    = errors.New("approval link is invalid or has expired")
	ErrResetTokenInvalid  = errors.New("reset token is invalid or has expired")
	ErrNotConfigured      = errors.New("signing secret is not configured")
	ErrInvalidToken       = errors.New("invalid token")
)

// ValidationError reports user-correctable bad input. The message is safe
// to return to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(msg string) error {
	return &ValidationError{Message: msg}
}
