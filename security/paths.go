// Package security guards the two trust boundaries of the service: the
// filesystem paths a request may touch and the text a request may place in a
// model prompt.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathRejected wraps every path validation failure so callers can treat
// them uniformly as client errors.
var ErrPathRejected = errors.New("path rejected")

// PathValidator confines user-supplied paths to a single root directory.
// User paths are interpreted relative to the root; traversal outside the
// root, null bytes, tilde expansion and symlink escapes are rejected.
type PathValidator struct {
	root string
}

// NewPathValidator resolves root (following symlinks) and returns a validator
// confined to it.
func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: documents root is empty", ErrPathRejected)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve root %q: %v", ErrPathRejected, root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: documents root %q: %v", ErrPathRejected, root, err)
	}
	return &PathValidator{root: resolved}, nil
}

// Root returns the resolved base directory.
func (v *PathValidator) Root() string { return v.root }

// Resolve validates a user path and returns its absolute location under the
// root. The path may be "/" or "" for the root itself, a relative path, or an
// absolute path that is re-anchored under the root.
func (v *PathValidator) Resolve(userPath string) (string, error) {
	if strings.ContainsRune(userPath, 0) {
		return "", fmt.Errorf("%w: path contains null bytes", ErrPathRejected)
	}
	if strings.HasPrefix(userPath, "~") {
		return "", fmt.Errorf("%w: tilde paths are not supported, use paths relative to the documents root", ErrPathRejected)
	}

	trimmed := strings.TrimSpace(userPath)
	var full string
	switch {
	case trimmed == "" || trimmed == "/":
		full = v.root
	case filepath.IsAbs(trimmed):
		// Absolute paths are re-anchored: /a/b means <root>/a/b.
		full = filepath.Join(v.root, strings.TrimPrefix(filepath.Clean(trimmed), string(filepath.Separator)))
	default:
		full = filepath.Join(v.root, trimmed)
	}

	full = filepath.Clean(full)
	if !v.within(full) {
		return "", fmt.Errorf("%w: %q is outside the documents root", ErrPathRejected, userPath)
	}

	// Join/Clean catch lexical traversal; an existing symlink can still point
	// outside the root, so re-check the real location when the path exists.
	if real, err := filepath.EvalSymlinks(full); err == nil {
		if !v.within(real) {
			return "", fmt.Errorf("%w: symlink escape, %q points outside the documents root", ErrPathRejected, userPath)
		}
		full = real
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: resolve %q: %v", ErrPathRejected, userPath, err)
	}

	return full, nil
}

// Directory validates a user path and requires it to be an existing
// directory under the root.
func (v *PathValidator) Directory(userPath string) (string, error) {
	full, err := v.Resolve(userPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("%w: directory does not exist: %q", ErrPathRejected, userPath)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: not a directory: %q", ErrPathRejected, userPath)
	}
	return full, nil
}

// File validates a user path and requires it to be an existing regular file
// under the root no larger than maxBytes (0 means no cap). It returns the
// resolved path and the file size.
func (v *PathValidator) File(userPath string, maxBytes int64) (string, int64, error) {
	full, err := v.Resolve(userPath)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", 0, fmt.Errorf("%w: file does not exist: %q", ErrPathRejected, userPath)
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("%w: not a regular file: %q", ErrPathRejected, userPath)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", 0, fmt.Errorf("%w: file too large: %q is %d bytes (max %d)", ErrPathRejected, userPath, info.Size(), maxBytes)
	}
	return full, info.Size(), nil
}

// Rel returns p relative to the root for reporting back to clients.
func (v *PathValidator) Rel(p string) string {
	rel, err := filepath.Rel(v.root, p)
	if err != nil {
		return p
	}
	return rel
}

func (v *PathValidator) within(p string) bool {
	if p == v.root {
		return true
	}
	return strings.HasPrefix(p, v.root+string(filepath.Separator))
}
