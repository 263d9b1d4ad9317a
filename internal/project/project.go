// Package project locates the framework checkout to operate on, preferring
// the git worktree the user is currently inside.
package project

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wyattjoh/next-dev-utils/internal/utils/file"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/shell"
)

var ErrNoProject = errors.New("next_project_path is not configured and the current directory is not in one of its worktrees")

type Worktree struct {
	Path   string
	Commit string
	Branch string
}

// ListWorktrees runs "git worktree list --porcelain" in dir.
func ListWorktrees(ctx context.Context, dir string) ([]Worktree, error) {
	out, err := shell.Exec(ctx, shell.Command{Name: "git", Args: []string{"worktree", "list", "--porcelain"}, Dir: dir})
	if err != nil {
		return nil, err
	}
	return parseWorktrees(out), nil
}

func parseWorktrees(out string) []Worktree {
	var (
		trees []Worktree
		cur   *Worktree
	)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			trees = append(trees, Worktree{Path: value})
			cur = &trees[len(trees)-1]
		case "HEAD":
			if cur != nil {
				cur.Commit = value
			}
		case "branch":
			if cur != nil {
				cur.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		case "detached":
			if cur != nil {
				cur.Branch = "(detached)"
			}
		}
	}
	return trees
}

// ResolveRoot returns the worktree of base that contains cwd, or base when
// cwd is outside all of them.
func ResolveRoot(ctx context.Context, base, cwd string) (string, error) {
	log := logger.Logger()

	gitDir := base
	if gitDir == "" {
		gitDir = cwd
	}
	trees, err := ListWorktrees(ctx, gitDir)
	if err != nil {
		log.Debugf("Not using git worktrees: %v", err)
	}

	var best *Worktree
	for i := range trees {
		ok, err := file.IsSubPath(trees[i].Path, cwd)
		if err != nil || !ok {
			continue
		}
		if best == nil || len(trees[i].Path) > len(best.Path) {
			best = &trees[i]
		}
	}
	if best != nil {
		log.Infof("Using worktree %s for %s at %s", best.Path, best.Branch, shortCommit(best.Commit))
		return best.Path, nil
	}

	if base == "" {
		return "", ErrNoProject
	}
	info, err := os.Stat(base)
	if err != nil {
		return "", fmt.Errorf("next_project_path %s: %w", base, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("next_project_path %s is not a directory", base)
	}
	log.Infof("Using base path %s as we weren't in a git worktree", base)
	return filepath.Clean(base), nil
}

func shortCommit(c string) string {
	if len(c) > 10 {
		return c[:10]
	}
	return c
}
