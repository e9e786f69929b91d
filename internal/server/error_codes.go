package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidScope    = 1004
	ErrCodeInvalidPolicy   = 1005
	ErrCodeInvalidMode     = 1006
	ErrCodeMissingRequired = 1009

	// Domain state (2xxx)
	ErrCodeNotFound = 2000
	ErrCodeConflict = 2102

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeNotFound
	case 409:
		return ErrCodeConflict
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
