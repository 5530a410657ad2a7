package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeForbidden          = "forbidden"
	ErrCodeAuthzTimeout       = "authz_timeout"
	ErrCodeInvalidRoom        = "invalid_room"
	ErrCodeNotAMember         = "not_a_member"
	ErrCodeSendFailed         = "send_failed"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeInternal           = "internal"
)

var (
	ErrUnauthenticated = coreError(ErrCodeUnauthenticated, "authentication required")
	ErrForbidden       = coreError(ErrCodeForbidden, "not allowed to join this room")
	ErrAuthzTimeout    = coreError(ErrCodeAuthzTimeout, "authorization check unavailable")
	ErrInvalidRoom     = coreError(ErrCodeInvalidRoom, "invalid room id")
	ErrNotAMember      = coreError(ErrCodeNotAMember, "not a member of this room")
	ErrSendFailed      = coreError(ErrCodeSendFailed, "message could not be stored, check history before resending")
	ErrInternal        = coreError(ErrCodeInternal, "internal error")

	errDuplicateConnection = errors.New("connection id already registered")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is matches any CoreError with the same code.
func (e *CoreError) Is(target error) bool {
	var other *CoreError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// BadRequest builds a bad_request error with a specific message.
func BadRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// AsCoreError converts err into a CoreError, hiding details of unknown errors.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrInternal
}
