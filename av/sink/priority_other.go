//go:build !linux

package sink

import "errors"

// setThreadPriority is unsupported off Linux; the probe disables hints.
func setThreadPriority(p Priority) error {
	return errors.New("per-thread priority not supported on this platform")
}
