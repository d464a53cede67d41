package out

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"tmk/internal/modules/reconcile/domain"
	reconcileout "tmk/internal/modules/reconcile/port/out"
)

// GitRepo resolves repository state by shelling out to git.
type GitRepo struct {
	// workDir is the directory git commands run in, usually the
	// process working directory.
	workDir string
}

func NewGitRepo(workDir string) *GitRepo {
	return &GitRepo{workDir: workDir}
}

var _ reconcileout.Repo = (*GitRepo)(nil)

func (r *GitRepo) Root(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRepoUnavailable, err)
	}
	return out, nil
}

func (r *GitRepo) Branch(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		// Detached HEAD has no branch; callers fall back to the tag.
		return "", fmt.Errorf("%w: %v", domain.ErrRepoUnavailable, err)
	}
	return out, nil
}

func (r *GitRepo) NearestAnnotatedTag(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "describe", "--abbrev=0")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRepoUnavailable, err)
	}
	return out, nil
}

func (r *GitRepo) HooksDir(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRepoUnavailable, err)
	}
	if !filepath.IsAbs(out) {
		root, err := r.Root(ctx)
		if err != nil {
			return "", err
		}
		out = filepath.Join(root, out)
	}
	return out, nil
}

func (r *GitRepo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
