//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProc starts the child in its own session so terminal
// signals aimed at the dashboard do not reach it.
func configureDaemonProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
