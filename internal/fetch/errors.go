package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError marks a failure below the HTTP layer (timeout, refused
// connection, DNS). These are the only failures the client retries; HTTP
// error statuses are returned to the caller as data.
type TransportError struct {
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	var te TransportError
	return errors.As(err, &te)
}

// retryable decides whether a request error is worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
