package model

import "errors"

var (
	// ErrMissingParent is returned when a node is inserted below a parent that
	// does not exist. Callers must create ancestors first; seeing this error
	// means the tree is inconsistent.
	ErrMissingParent = errors.New("parent node not found")

	// ErrNodeNotFound is returned by lookups that require an existing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoImages is returned when a build discovers no images at all.
	ErrNoImages = errors.New("no images found in any source")

	// ErrRelativePath is returned for source paths without a root, drive or
	// UNC prefix.
	ErrRelativePath = errors.New("relative paths are not supported")
)
