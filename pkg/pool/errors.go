package pool

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	ErrCodeFactoryFailed       = "FACTORY_FAILED"
	ErrCodeWorkerFactoryFailed = "WORKER_FACTORY_FAILED"
	ErrCodeUnknownKey          = "UNKNOWN_KEY"
	ErrCodePoolClosed          = "POOL_CLOSED"
)

// PoolError represents a pool operation failure.
type PoolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *PoolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

func newPoolError(code, message string, cause error) *PoolError {
	return &PoolError{Code: code, Message: message, Err: cause}
}

// ErrorCode extracts the pool error code from err, or "" when err is not a
// PoolError.
func ErrorCode(err error) string {
	var poolErr *PoolError
	if errors.As(err, &poolErr) {
		return poolErr.Code
	}
	return ""
}

// IsCapacityExceeded reports whether err means the pool is full with no idle
// record to evict. Callers should treat it as retryable.
func IsCapacityExceeded(err error) bool {
	return ErrorCode(err) == ErrCodeCapacityExceeded
}

// IsFactoryFailed reports whether driver/session creation failed.
func IsFactoryFailed(err error) bool {
	return ErrorCode(err) == ErrCodeFactoryFailed
}

// IsWorkerFactoryFailed reports whether worker construction failed.
func IsWorkerFactoryFailed(err error) bool {
	return ErrorCode(err) == ErrCodeWorkerFactoryFailed
}

// IsUnknownKey reports whether the operation required a record that is not in
// the pool.
func IsUnknownKey(err error) bool {
	return ErrorCode(err) == ErrCodeUnknownKey
}
