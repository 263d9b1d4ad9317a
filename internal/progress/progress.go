// Package progress renders terminal progress for pack runs. All bar updates
// happen on one goroutine so concurrent workers never interleave output.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// recentLabels is how many completed labels the bar description shows.
const recentLabels = 3

// Event reports one finished unit of work.
type Event struct {
	Label string
	OK    bool
}

// Tracker counts completions sent by concurrent workers.
type Tracker struct {
	total  int
	title  string
	events chan Event
	done   chan struct{}
	bar    *progressbar.ProgressBar

	mu     sync.RWMutex
	closed bool

	// Owned by the consumer goroutine until done is closed.
	completed int
	failed    int
	recent    []string
}

// NewTracker starts the consumer. A nil writer disables the bar; events are
// still counted and logged at debug level.
func NewTracker(total int, title string, w io.Writer) *Tracker {
	t := &Tracker{
		total:  total,
		title:  title,
		events: make(chan Event, total),
		done:   make(chan struct{}),
	}
	if w != nil {
		t.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetDescription(title),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	go t.consume()
	return t
}

func (t *Tracker) consume() {
	defer close(t.done)
	log := logger.Logger()

	for ev := range t.events {
		t.completed++
		label := ev.Label
		if !ev.OK {
			t.failed++
			label += " (failed)"
		}
		t.recent = append(t.recent, label)
		if len(t.recent) > recentLabels {
			t.recent = t.recent[len(t.recent)-recentLabels:]
		}

		log.Debugf("%s: %d/%d done, latest %s", t.title, t.completed, t.total, label)
		if t.bar == nil {
			continue
		}
		t.bar.Describe(fmt.Sprintf("%s [%s]", t.title, strings.Join(t.recent, ", ")))
		if err := t.bar.Add(1); err != nil {
			log.Errorf("failed to add to progress bar: %v", err)
		}
	}
}

// Complete records a finished unit. Calls after Close are ignored.
func (t *Tracker) Complete(label string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	t.events <- Event{Label: label, OK: ok}
}

// Close drains outstanding events and finishes the bar.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.done
		return
	}
	t.closed = true
	close(t.events)
	t.mu.Unlock()

	<-t.done
	if t.bar != nil {
		if err := t.bar.Finish(); err != nil {
			logger.Logger().Errorf("failed to finish progress bar: %v", err)
		}
	}
}

// Counts returns completed and failed totals. Only stable after Close.
func (t *Tracker) Counts() (completed, failed int) {
	<-t.done
	return t.completed, t.failed
}

// Recent returns up to the last three completed labels, oldest first. Only
// stable after Close.
func (t *Tracker) Recent() []string {
	<-t.done
	return append([]string(nil), t.recent...)
}
