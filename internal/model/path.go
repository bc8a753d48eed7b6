// Package model holds the value types shared across the sync engine:
// remote entry metadata, persisted sync-state rows, and the canonical
// path convention every other package builds on.
package model

import (
	"path"
	"strings"
)

// Canon normalizes a path to the engine's internal convention: absolute,
// forward-slash separated, leading "/", no trailing slash except for the
// root "/" itself, and free of "." or ".." segments.
//
// Canon is idempotent: Canon(Canon(s)) == Canon(s) for every s.
func Canon(s string) string {
	if s == "" {
		return "/"
	}

	s = strings.ReplaceAll(s, "\\", "/")
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}

	cleaned := path.Clean(s)
	if cleaned == "." {
		return "/"
	}

	return cleaned
}

// Join canonicalizes parent and appends name as a new path segment.
func Join(parent, name string) string {
	parent = Canon(parent)
	if parent == "/" {
		return Canon("/" + name)
	}

	return Canon(parent + "/" + name)
}

// Base returns the final path segment, matching path.Base semantics but
// operating on an already-canonical path.
func Base(p string) string {
	p = Canon(p)
	if p == "/" {
		return ""
	}

	return path.Base(p)
}

// Dir returns the canonical parent of p. Dir("/") == "/".
func Dir(p string) string {
	p = Canon(p)
	if p == "/" {
		return "/"
	}

	return Canon(path.Dir(p))
}

// IsPrefix reports whether parent is a proper prefix of p (parent != p),
// i.e. p is a descendant of parent.
func IsPrefix(parent, p string) bool {
	parent, p = Canon(parent), Canon(p)
	if parent == p {
		return false
	}

	if parent == "/" {
		return p != "/"
	}

	return strings.HasPrefix(p, parent+"/")
}
