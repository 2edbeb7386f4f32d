// File: internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

// DriverError marks failures of the browser process or the CDP transport
// itself, as opposed to transient probe failures inside a live page.
// The CLI maps these to a dedicated exit code.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("browser driver: %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// IsDriverError reports whether err wraps a DriverError.
func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}

// ErrFirefoxUnsupported is returned when firefox is requested in automation
// mode. CDP drives Chromium-family browsers only; firefox remains usable
// through system-browser mode.
var ErrFirefoxUnsupported = errors.New("firefox is not supported in automation mode, use --mode system")
