// SPDX-License-Identifier: MIT

package user

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openBrowser launches the system browser detached, so the emulation thread
// never waits on it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	// Reap the child in the background; we do not care about its exit status.
	go func() { _ = cmd.Wait() }()
	return nil
}
