package chrome

import (
	"context"
	"errors"
	"strings"
)

// IsSessionInterrupted reports whether err looks like the browser or its
// websocket went away mid-render rather than a page level failure.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket", "broken pipe", "connection reset", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
