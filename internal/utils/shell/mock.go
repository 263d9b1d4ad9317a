package shell

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// MockCommand answers commands whose string form matches Pattern (a regular
// expression). Handler, when set, takes precedence over Output and Error.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
	Handler func(Command) (string, error)
}

// MockExecutor is an Executor for tests. It records every call.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []Command
}

func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{commands: commands}
}

func (m *MockExecutor) Exec(ctx context.Context, c Command) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	commands := m.commands
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	cmdStr := c.String()
	for _, mc := range commands {
		ok, err := regexp.MatchString(mc.Pattern, cmdStr)
		if err != nil {
			return "", fmt.Errorf("invalid mock pattern %q: %w", mc.Pattern, err)
		}
		if !ok {
			continue
		}
		if mc.Handler != nil {
			return mc.Handler(c)
		}
		return mc.Output, mc.Error
	}
	return "", fmt.Errorf("no mock registered for command %q", cmdStr)
}

// Calls returns a copy of the commands executed so far.
func (m *MockExecutor) Calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.calls))
	copy(out, m.calls)
	return out
}
