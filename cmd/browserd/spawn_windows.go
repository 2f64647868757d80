//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the spawned daemon in its own process group so console
// control events aimed at the client never reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
