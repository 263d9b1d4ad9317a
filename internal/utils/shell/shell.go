package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// Command describes one subprocess invocation. Name is resolved through
// PATH; Env entries (KEY=VALUE) are appended to the current environment.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string

	// Stream logs output lines as they arrive instead of after exit.
	Stream bool
	// Verbose logs streamed lines at info level rather than debug.
	Verbose bool
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Executor runs commands. Exec returns captured stdout; a non-zero exit is
// an error.
type Executor interface {
	Exec(ctx context.Context, cmd Command) (string, error)
}

// Default is the executor used by the package-level helpers. Tests replace
// it with a MockExecutor.
var Default Executor = &HostExecutor{}

// Exec runs cmd with the Default executor.
func Exec(ctx context.Context, cmd Command) (string, error) {
	return Default.Exec(ctx, cmd)
}

// HostExecutor runs commands on the host.
type HostExecutor struct{}

func (HostExecutor) Exec(ctx context.Context, c Command) (string, error) {
	log := logger.Logger()

	path, err := exec.LookPath(c.Name)
	if err != nil {
		return "", fmt.Errorf("command %s not found: %w", c.Name, err)
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	if c.Dir != "" {
		log.Debugf("Exec: [%s] in %s", c, c.Dir)
	} else {
		log.Debugf("Exec: [%s]", c)
	}

	if !c.Stream {
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				log.Info(msg)
			}
			return stdout.String(), fmt.Errorf("failed to exec %s: %w", c, err)
		}
		if out := strings.TrimSpace(stdout.String()); out != "" {
			log.Debug(out)
		}
		return stdout.String(), nil
	}

	return streamCmd(cmd, c)
}

func streamCmd(cmd *exec.Cmd, c Command) (string, error) {
	log := logger.Logger()
	emit := log.Debug
	if c.Verbose {
		emit = log.Info
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", c, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", c, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", c, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		output  strings.Builder
		errTail []string
		scanErr error
	)
	scan := func(r io.Reader, capture bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			emit(line)
			mu.Lock()
			if capture {
				output.WriteString(line)
				output.WriteByte('\n')
			} else {
				errTail = append(errTail, line)
				if len(errTail) > 20 {
					errTail = errTail[1:]
				}
			}
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			log.Warnf("Stopped reading output of %s: %v", c, err)
			if capture {
				mu.Lock()
				scanErr = errors.Join(scanErr, err)
				mu.Unlock()
			}
			// Keep the pipe drained so the child never blocks on write.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout, true)
	go scan(stderr, false)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if !c.Verbose && len(errTail) > 0 {
			log.Info(strings.Join(errTail, "\n"))
		}
		return output.String(), fmt.Errorf("failed to wait for command %s: %w", c, err)
	}
	if scanErr != nil {
		return output.String(), fmt.Errorf("reading output of command %s: %w", c, scanErr)
	}
	return output.String(), nil
}
