package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGitClient implements Client over a local work tree using go-git
type GoGitClient struct {
	repo *git.Repository
	path string
}

// Open opens the repository at path
func Open(path string) (*GoGitClient, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, path)
		}
		return nil, fmt.Errorf("failed to open repository %s: %w", path, err)
	}
	return &GoGitClient{repo: repo, path: path}, nil
}

// ReadFile returns the file content at the given ref
func (c *GoGitClient) ReadFile(ctx context.Context, ref, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	commit, err := c.resolveCommit(ref)
	if err != nil {
		return nil, err
	}

	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrFileNotFound, path, ref)
		}
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, ref, err)
	}

	reader, err := file.Blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open blob for %s: %w", path, err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob for %s: %w", path, err)
	}
	return content, nil
}

// resolveCommit resolves a branch name or revision to its commit object
func (c *GoGitClient) resolveCommit(ref string) (*object.Commit, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, ref)
		}
		return nil, fmt.Errorf("failed to resolve ref %s: %w", ref, err)
	}

	commit, err := c.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	return commit, nil
}

// ListBranches returns every local branch with its head commit
func (c *GoGitClient) ListBranches(ctx context.Context) ([]Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter, err := c.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	var branches []Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, Branch{
			Name:    ref.Name().Short(),
			HeadRef: ref.Hash().String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}
	return branches, nil
}

// CurrentRef returns the currently checked out branch name
func (c *GoGitClient) CurrentRef(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return head.Hash().String(), nil
	}
	return head.Name().Short(), nil
}

// SwitchRef checks out the named branch
func (c *GoGitClient) SwitchRef(ctx context.Context, branch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	worktree, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
		}
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	return nil
}

var _ Client = (*GoGitClient)(nil)
