package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// shutdownGrace is how long a server gets to exit after its stdin closes.
const shutdownGrace = 2 * time.Second

// Process is a stdio server running as a child process.
type Process struct {
	Client *Client

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdoutR *os.File
	stderr  *lockedBuffer
	stdout  *lockedBuffer

	waitOnce sync.Once
	waitErr  error
}

// StartProcess launches command with args, adding env on top of the current
// environment, and connects a client to its stdin/stdout.
func StartProcess(ctx context.Context, command string, args []string, env map[string]string) (*Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), envPairs(env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	// The read end stays ours, so Wait never closes it under a pending read.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	cmd.Stdout = stdoutW
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	err = cmd.Start()
	stdoutW.Close()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	transcript := &lockedBuffer{}
	return &Process{
		Client:  NewClient(io.TeeReader(stdoutR, transcript), stdin),
		cmd:     cmd,
		stdin:   stdin,
		stdoutR: stdoutR,
		stderr:  stderr,
		stdout:  transcript,
	}, nil
}

// Stderr returns everything the process wrote to stderr so far.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Stdout returns every byte the client has read from the process.
func (p *Process) Stdout() string {
	return p.stdout.String()
}

// Close closes stdin and waits for the process to exit, killing it after a
// grace period. The stdout pipe is closed last, which ends any read the
// client still has pending. It returns the process exit error, if any.
func (p *Process) Close() error {
	p.waitOnce.Do(func() {
		p.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case p.waitErr = <-done:
		case <-time.After(shutdownGrace):
			p.cmd.Process.Kill()
			p.waitErr = <-done
		}
		p.stdoutR.Close()
	})
	return p.waitErr
}

// ExitCode returns the exit code after Close, or -1 when unknown.
func (p *Process) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func envPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

// ParseEnvPairs turns KEY=VALUE strings into a map.
func ParseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment variable %q (want KEY=VALUE)", pair)
		}
		env[key] = value
	}
	return env, nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
