package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// Stepper reports the current step of a single pack run.
type Stepper interface {
	Step(desc string)
	Done()
}

// Spinner is an indeterminate progress indicator.
type Spinner struct {
	bar *progressbar.ProgressBar
}

func NewSpinner(w io.Writer, desc string) *Spinner {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Spinner{bar: bar}
}

func (s *Spinner) Step(desc string) {
	s.bar.Describe(desc)
	if err := s.bar.Add(1); err != nil {
		logger.Logger().Debugf("failed to advance spinner: %v", err)
	}
}

func (s *Spinner) Done() {
	if err := s.bar.Finish(); err != nil {
		logger.Logger().Debugf("failed to finish spinner: %v", err)
	}
}

// Quiet is a Stepper that only logs.
type Quiet struct{}

func (Quiet) Step(desc string) { logger.Logger().Debug(desc) }
func (Quiet) Done()            {}
