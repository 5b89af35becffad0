//go:build !unix

package command

import "os/exec"

// killProcessGroupOnCancel keeps the default cancellation, which kills the direct child only.
func killProcessGroupOnCancel(_ *exec.Cmd) {}
