package notification

import (
	"errors"
	"fmt"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/util"
)

// DispatchError is returned when a channel transport or a queue hand-off failed.
// The attempt has already been audited when a caller sees it.
type DispatchError struct {
	Channel   model.ChannelType
	Op        string
	Kind      string
	retryable bool
	Err       error
}

// NewDispatchError classifies err and wraps it for the given channel operation.
func NewDispatchError(channel model.ChannelType, op string, err error) *DispatchError {
	retryable, kind := util.IsRetryableError(err)
	return &DispatchError{Channel: channel, Op: op, Kind: kind, retryable: retryable, Err: err}
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Channel, e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed if sent again.
func (e *DispatchError) Retryable() bool { return e.retryable }

// IsRetryable reports whether err is a DispatchError worth retrying.
func IsRetryable(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.retryable
}
