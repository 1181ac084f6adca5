// Package scm abstracts operations on version control systems.
// Currently, only git is supported.
//
// Adapted from https://github.com/thought-machine/please/tree/master/src/scm
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package scm

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/forgerepo/forge/internal/fs"
	"github.com/forgerepo/forge/internal/turbopath"
)

// ErrFallback is returned by NewFallback when no known SCM is found at repoRoot
var ErrFallback = errors.New("cannot find a .git folder. Falling back to manual file hashing (which may be slower). If you are running this build in a pruned directory, you can ignore this message. Otherwise, please initialize a git repository in the root of your monorepo")

// SCM represents a source control implementation that we can ask for various things.
type SCM interface {
	// ChangedFiles returns the list of files that changed between fromCommit and toCommit,
	// plus any untracked files, relative to relativeTo.
	ChangedFiles(fromCommit string, toCommit string, relativeTo string) ([]string, error)
	// PreviousContent returns the contents of filePath as of fromCommit.
	PreviousContent(fromCommit string, filePath string) ([]byte, error)
}

// New returns a new SCM instance for this repo root, or nil if none is known.
func New(repoRoot turbopath.AbsoluteSystemPath) SCM {
	if fs.PathExists(filepath.Join(repoRoot.ToString(), ".git")) {
		return &git{repoRoot: repoRoot}
	}
	return nil
}

// NewFallback returns a new SCM instance for this repo root.
// If there is no known implementation, it returns a stub along with ErrFallback.
func NewFallback(repoRoot turbopath.AbsoluteSystemPath) (SCM, error) {
	if found := New(repoRoot); found != nil {
		return found, nil
	}
	return &stub{}, ErrFallback
}
