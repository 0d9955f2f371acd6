//go:build !windows

package command

import "os/exec"

func hideConsoleWindow(cmd *exec.Cmd) {}
