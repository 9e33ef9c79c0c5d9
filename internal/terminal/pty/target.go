package pty

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// PromptMarker is the shell prompt. The bridge writes it after a denied
	// line so the terminal looks ready again.
	PromptMarker = "$ "

	defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// ExecutionTarget produces the command that runs a session's shell. It is
// chosen once when a session starts.
type ExecutionTarget interface {
	// Command builds a fresh, unstarted command.
	Command() (*exec.Cmd, error)
	// Mode names the target for logs and metrics.
	Mode() string
}

// ShellEnv is the complete environment of a session shell. Nothing from the
// server process is inherited.
func ShellEnv(home string) []string {
	return []string{
		"TERM=xterm-256color",
		"HOME=" + home,
		"PATH=" + defaultPath,
		"PWD=" + home,
		"PS1=" + PromptMarker,
		"LANG=C.UTF-8",
	}
}

// ShellScript returns the /bin/sh script that starts the interactive shell.
// Terminal echo is switched off and bash runs without readline because the
// bridge echoes input and owns line editing. When shell is missing the
// script falls back to sh.
func ShellScript(shell string) string {
	if shell == "" {
		shell = "/bin/bash"
	}
	args := "-i"
	if filepath.Base(shell) == "bash" {
		args = "--noprofile --norc --noediting -i"
	}
	q := shellQuote(shell)
	return fmt.Sprintf("stty -echo 2>/dev/null; if command -v %s >/dev/null 2>&1; then exec %s %s; fi; exec /bin/sh -i", q, q, args)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// DirectTarget runs the shell on the host, confined to the workspace only by
// its working directory and the command filter. Development use only.
type DirectTarget struct {
	WorkspaceDir string
	Shell        string
}

// Command implements ExecutionTarget.
func (t DirectTarget) Command() (*exec.Cmd, error) {
	info, err := os.Stat(t.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", t.WorkspaceDir)
	}

	cmd := exec.Command("/bin/sh", "-c", ShellScript(t.Shell))
	cmd.Dir = t.WorkspaceDir
	cmd.Env = ShellEnv(t.WorkspaceDir)
	return cmd, nil
}

// Mode implements ExecutionTarget.
func (DirectTarget) Mode() string { return "direct" }

// SandboxedTarget runs the shell inside a provisioned container through
// docker exec.
type SandboxedTarget struct {
	ContainerID string
	Workdir     string
	Shell       string
	DockerBin   string
	DockerHost  string
}

// Command implements ExecutionTarget.
func (t SandboxedTarget) Command() (*exec.Cmd, error) {
	if t.ContainerID == "" {
		return nil, fmt.Errorf("sandboxed target has no container")
	}
	bin := t.DockerBin
	if bin == "" {
		bin = "docker"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	args := []string{"exec", "-it", "-w", t.Workdir}
	for _, kv := range ShellEnv(t.Workdir) {
		args = append(args, "-e", kv)
	}
	args = append(args, t.ContainerID, "/bin/sh", "-c", ShellScript(t.Shell))

	cmd := exec.Command(path, args...)
	cmd.Dir = os.TempDir()
	cmd.Env = []string{
		"PATH=" + defaultPath,
		"HOME=" + os.TempDir(),
		"TERM=xterm-256color",
	}
	if t.DockerHost != "" {
		cmd.Env = append(cmd.Env, "DOCKER_HOST="+t.DockerHost)
	}
	return cmd, nil
}

// Mode implements ExecutionTarget.
func (SandboxedTarget) Mode() string { return "sandboxed" }
