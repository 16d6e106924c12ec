// Package platform captures the host/target conventions and the
// external-tool shell-out helper used throughout the deployment engine.
package platform

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/xerrors"
)

// Target identifies the userland the staged tree must run on.
type Target int

const (
	// Posix covers generic Linux/ELF userlands.
	Posix Target = iota
	Android
	Mac
	Windows
)

// ParseTarget maps the Package.targetPlatform config value onto a Target.
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(s) {
	case "posix":
		return Posix, nil
	case "android":
		return Android, nil
	case "mac":
		return Mac, nil
	case "windows":
		return Windows, nil
	default:
		return 0, xerrors.Errorf("unknown targetPlatform %q", s)
	}
}

func (t Target) String() string {
	switch t {
	case Posix:
		return "posix"
	case Android:
		return "android"
	case Mac:
		return "mac"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

// NeedsRelocation reports whether C7 must rewrite embedded references
// for this target. PE binaries need no rewrite (spec.md §4.6).
func (t Target) NeedsRelocation() bool {
	return t != Windows
}

// LibDirIsExecDir reports whether the staging copier places resolved
// libraries next to the main executable instead of into a dedicated
// library directory (spec.md §3, "Staging tree").
func (t Target) LibDirIsExecDir() bool {
	return t == Windows
}

// WorkerCount returns the bounded worker-pool size mandated by
// spec.md §5: the host CPU count, floor 4.
func WorkerCount() int {
	n := runtime.NumCPU()
	if n < 4 {
		return 4
	}
	return n
}

// ToolResult captures the outcome of an external-tool invocation, per
// DESIGN NOTES' "helper returning (exit_code, captured_stdout,
// captured_stderr)".
type ToolResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunTool shells out to name with args. In verbose mode the child
// inherits stdio; otherwise its output is captured and returned.
func RunTool(verbose bool, name string, args ...string) (ToolResult, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	if verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}
	err := cmd.Run()
	res := ToolResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		return res, xerrors.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// HasTool reports whether name is reachable via $PATH.
func HasTool(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
