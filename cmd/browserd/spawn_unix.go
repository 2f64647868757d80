//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the spawned daemon in its own session so terminal signals
// aimed at the client's foreground process group (Ctrl+C) never reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
