//go:build windows

package main

import (
	"os/exec"
)

func configureDaemonProc(cmd *exec.Cmd) {
	// Windows doesn't use Setsid. Started processes are independent
	// enough for our simple use case.
}
