// Package security guards filesystem paths supplied through the API.
// Export handlers write world files, .prj sidecars and composed rasters
// to caller-chosen locations; validation keeps those writes inside
// permitted directories.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports whether filePath stays inside
// safeDir once cleaned, made absolute and resolved through symlinks.
// Export targets usually do not exist yet, so when the path itself
// cannot be resolved the nearest existing ancestor is resolved instead;
// a symlinked parent cannot redirect the write elsewhere.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	target, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("cannot absolutize %s: %w", filePath, err)
	}

	root, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("cannot absolutize directory %s: %w", safeDir, err)
	}

	resolvedTarget := target
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		resolvedTarget = resolved
	} else {
		// Walk up to the nearest existing ancestor, resolve that, and
		// rebuild the target path below it.
		probe := target
		for {
			parent := filepath.Dir(probe)
			if parent == probe {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				below, _ := filepath.Rel(parent, target)
				resolvedTarget = filepath.Join(resolved, below)
				break
			}
			probe = parent
		}
	}

	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("cannot resolve directory %s: %w", safeDir, err)
	}

	rel, err := filepath.Rel(resolvedRoot, resolvedTarget)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", safeDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, safeDir)
	}

	return nil
}

// ValidatePathWithinAllowedDirs accepts filePath when it sits inside
// any one of allowedDirs.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}

	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}

	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateExportPath applies the default export policy: the system temp
// directory or the current working directory. Extra directories come
// from configuration and are checked separately by the caller.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	return ValidatePathWithinAllowedDirs(filePath, []string{os.TempDir(), cwd})
}
