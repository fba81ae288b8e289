//go:build linux

package sink

import "golang.org/x/sys/unix"

// setThreadPriority sets the nice value of the calling thread only.
// On Linux PRIO_PROCESS with a thread id targets that single thread.
func setThreadPriority(p Priority) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), p.niceness())
}
