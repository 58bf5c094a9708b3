//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// RescanSignals ask a running process to scan for devices again.
func RescanSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP}
}
