//go:build !windows

package daemon

import "syscall"

// detachSysProcAttr puts the child in its own session so it survives the
// parent's terminal closing.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
