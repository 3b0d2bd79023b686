//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProc puts the child in a new process group so Ctrl+C in
// the dashboard's console does not stop it.
func configureDaemonProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
