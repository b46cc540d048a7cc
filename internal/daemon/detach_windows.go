//go:build windows

package daemon

import "syscall"

// detachSysProcAttr starts the child in a new process group.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
