// Package prompt asks the user yes/no questions and reads secrets from the
// terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a question needs a terminal and stdin
// is not one.
var ErrNotInteractive = errors.New("no terminal available for interactive prompt")

// Confirmer asks yes/no questions.
type Confirmer interface {
	Interactive() bool
	Confirm(ctx context.Context, question string) (bool, error)
}

// Terminal prompts on stderr and reads answers from stdin. It is safe for
// concurrent use: each question and its answer form one exchange, and
// exchanges never interleave.
type Terminal struct {
	In  *os.File
	Out io.Writer
	// DefaultYes makes an empty answer count as yes.
	DefaultYes bool
	// Input replaces In as the source of answers. A Terminal with Input set
	// is interactive and reads secrets as plain lines.
	Input io.Reader

	mu      sync.Mutex
	reader  *bufio.Reader
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stderr}
}

func (t *Terminal) Interactive() bool {
	if t.Input != nil {
		return true
	}
	return t.In != nil && term.IsTerminal(int(t.In.Fd()))
}

// readLine returns the next input line. A read abandoned by a cancelled
// context stays pending and its line goes to the next caller. Callers hold
// t.mu.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if t.pending == nil {
		if t.reader == nil {
			var src io.Reader = t.In
			if t.Input != nil {
				src = t.Input
			}
			t.reader = bufio.NewReader(src)
		}
		ch := make(chan lineResult, 1)
		r := t.reader
		go func() {
			line, err := r.ReadString('\n')
			if errors.Is(err, io.EOF) && line != "" {
				err = nil
			}
			ch <- lineResult{line: line, err: err}
		}()
		t.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-t.pending:
		t.pending = nil
		return res.line, res.err
	}
}

// Confirm returns true for "y" or "yes". An empty answer picks the default.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	if !t.Interactive() {
		return false, ErrNotInteractive
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	hint := "[y/N]"
	if t.DefaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprintf(t.Out, "%s %s ", question, hint)

	line, err := t.readLine(ctx)
	if err != nil {
		fmt.Fprintln(t.Out)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	case "":
		return t.DefaultYes, nil
	default:
		return false, nil
	}
}

// ReadLine reads one line of visible input.
func (t *Terminal) ReadLine(label string) (string, error) {
	if !t.Interactive() {
		return "", ErrNotInteractive
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.Out, "%s: ", label)
	line, err := t.readLine(context.Background())
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// ReadSecret reads a line with echo disabled.
func (t *Terminal) ReadSecret(label string) (string, error) {
	if t.Input != nil {
		return t.ReadLine(label)
	}
	if !t.Interactive() {
		return "", ErrNotInteractive
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		return "", fmt.Errorf("reading %s: an earlier prompt is still waiting for input", label)
	}
	fmt.Fprintf(t.Out, "%s: ", label)
	b, err := term.ReadPassword(int(t.In.Fd()))
	fmt.Fprintln(t.Out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Scripted answers questions from a fixed list, then says no.
type Scripted struct {
	mu        sync.Mutex
	Answers   []bool
	Questions []string
	NoTTY     bool
}

func (s *Scripted) Interactive() bool { return !s.NoTTY }

func (s *Scripted) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Questions = append(s.Questions, question)
	if len(s.Answers) == 0 {
		return false, nil
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}
