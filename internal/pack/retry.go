package pack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wyattjoh/next-dev-utils/internal/prompt"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// RetryMode selects what happens after a failed upload.
type RetryMode string

const (
	// RetryPrompt asks before every retry, for as long as the user agrees.
	// Without a terminal it behaves like RetryNever.
	RetryPrompt RetryMode = "prompt"
	// RetryAuto retries up to MaxAttempts total attempts.
	RetryAuto  RetryMode = "auto"
	RetryNever RetryMode = "never"
)

func ParseRetryMode(s string) (RetryMode, error) {
	switch m := RetryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return RetryPrompt, nil
	case RetryPrompt, RetryAuto, RetryNever:
		return m, nil
	default:
		return "", fmt.Errorf("invalid upload retry mode %q (want prompt, auto or never)", s)
	}
}

type RetryPolicy struct {
	Mode        RetryMode
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{Mode: RetryPrompt, MaxAttempts: 3, Backoff: 2 * time.Second}

// shouldRetry decides whether to make attempt+1 after attempt failed.
func (p RetryPolicy) shouldRetry(ctx context.Context, confirmer prompt.Confirmer, key string, attempt int) (bool, error) {
	log := logger.Logger()

	switch p.Mode {
	case RetryNever:
		return false, nil
	case RetryAuto:
		limit := p.MaxAttempts
		if limit < 1 {
			limit = 1
		}
		if attempt >= limit {
			log.Warnf("Giving up on %s after %d attempts", key, attempt)
			return false, nil
		}
		if err := sleep(ctx, p.Backoff); err != nil {
			return false, err
		}
		log.Infof("Retrying upload of %s (attempt %d of %d)", key, attempt+1, limit)
		return true, nil
	default:
		if confirmer == nil || !confirmer.Interactive() {
			log.Warnf("Not retrying upload of %s: no terminal to confirm on", key)
			return false, nil
		}
		return confirmer.Confirm(ctx, fmt.Sprintf("Upload of %s failed. Retry?", key))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
