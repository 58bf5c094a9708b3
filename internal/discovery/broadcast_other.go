//go:build !unix && !windows

package discovery

import "syscall"

func enableBroadcast(string, string, syscall.RawConn) error { return nil }
