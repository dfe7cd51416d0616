//go:build !unix

package sandbox

import "os/exec"

// configureProcessGroup keeps the default cancellation, which kills the
// interpreter process only.
func configureProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {}
