// Package gitrepo is the Git collaborator: reading manifest content at a
// ref, listing branches and snapshotting branch context around a sync.
package gitrepo

import (
	"context"
	"errors"
)

var (
	// ErrFileNotFound indicates the requested path is absent at the ref
	ErrFileNotFound = errors.New("file not found")
	// ErrBranchNotFound indicates the branch does not exist
	ErrBranchNotFound = errors.New("branch not found")
	// ErrRepositoryNotFound indicates the repository could not be opened
	ErrRepositoryNotFound = errors.New("repository not found")
)

// Branch is one discovered branch and its head commit
type Branch struct {
	Name    string
	HeadRef string
}

// Client is the read surface consumed by the sync engine. Only file reads
// at a ref, branch listing, and branch context snapshot/restore are used;
// everything else git stays external.
type Client interface {
	// ReadFile returns the file content at the given ref (branch name or
	// commit hash). Returns ErrFileNotFound when absent at that ref.
	ReadFile(ctx context.Context, ref, path string) ([]byte, error)

	// ListBranches returns every branch with its head commit
	ListBranches(ctx context.Context) ([]Branch, error)

	// CurrentRef returns the currently checked out branch name
	CurrentRef(ctx context.Context) (string, error)

	// SwitchRef checks out the named branch. Used only to snapshot and
	// restore branch context around a sync.
	SwitchRef(ctx context.Context, branch string) error
}
