package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EnsureDirectoryExists creates dir (and any missing parents) with 0755
// permissions if it does not already exist.
func EnsureDirectoryExists(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}
	return nil
}

// ExpandPath expands a leading "~/" to the current user's home directory.
// CanonicalizeWithinRoots applies it to each root before resolving it;
// policy glob patterns themselves are matched unexpanded.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// CanonicalizeWithinRoots resolves path to its absolute, symlink-resolved
// canonical form and verifies that it lies under at least one of roots.
//
// It rejects:
//   - raw ".." traversal sequences that escape every root after cleaning
//   - a resolved (symlink-followed) destination outside every root
//   - any parent directory component that is itself a symlink pointing
//     outside every root, even when the leaf component resolves inside one
//
// roots need not exist on disk for the traversal check to run, but the
// deepest existing ancestor of path is used to detect symlinked parents.
func CanonicalizeWithinRoots(path string, roots []string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	abs = filepath.Clean(abs)

	canonical, err := canonicalizeExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}

	absRoots := make([]string, 0, len(roots))
	for _, r := range roots {
		ra, err := filepath.Abs(ExpandPath(r))
		if err != nil {
			continue
		}
		if resolved, err := ResolveSymlink(ra); err == nil {
			ra = resolved
		}
		absRoots = append(absRoots, filepath.Clean(ra))
	}

	if !withinAnyRoot(canonical, absRoots) {
		if detail := symlinkedAncestorDetail(abs); detail != "" {
			return "", fmt.Errorf("path traversal not allowed: %q escapes all allowed roots (%s)", path, detail)
		}
		return "", fmt.Errorf("path traversal not allowed: %q escapes all allowed roots", path)
	}

	return canonical, nil
}

// canonicalizeExistingPrefix resolves symlinks along abs, walking up to the
// deepest existing ancestor when the full path does not exist yet (e.g. a
// file a plugin is about to create), so that a symlinked parent directory is
// still caught even though the leaf itself has no on-disk target.
func canonicalizeExistingPrefix(abs string) (string, error) {
	if resolved, err := ResolveSymlink(abs); err == nil {
		return filepath.Clean(resolved), nil
	}

	dir := filepath.Dir(abs)
	base := filepath.Base(abs)
	for {
		resolved, err := ResolveSymlink(dir)
		if err == nil {
			return filepath.Join(resolved, base), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding an existing ancestor.
			return abs, nil
		}
		base = filepath.Join(filepath.Base(dir), base)
		dir = parent
	}
}

// symlinkedAncestorDetail walks abs's existing ancestors looking for the
// first one that is itself a symlink, returning a diagnostic naming it and
// its immediate target. Returns "" when no ancestor is a symlink (the
// escape was a plain ".." traversal rather than one hidden behind a link).
func symlinkedAncestorDetail(abs string) string {
	dir := filepath.Dir(abs)
	for {
		if isLink, err := IsSymlink(dir); err == nil && isLink {
			if target, err := GetSymlinkTarget(dir); err == nil {
				return fmt.Sprintf("parent directory %q is a symlink to %q", dir, target)
			}
			return fmt.Sprintf("parent directory %q is a symlink", dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func withinAnyRoot(candidate string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, candidate)
		if err != nil {
			continue
		}
		if rel == "." || !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// IsReservedDirectory reports whether path names (or, once symlinks are
// resolved, resolves to) a platform system directory that must never be
// granted to a plugin regardless of policy configuration.
func IsReservedDirectory(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	absPath = filepath.Clean(absPath)

	if resolved, err := ResolveSymlink(absPath); err == nil {
		absPath = resolved
	}

	if absPath == "/" || absPath == "\\" || absPath == "C:\\" {
		return true
	}
	absPath = filepath.Clean(absPath)

	for _, reserved := range reservedDirectories() {
		reservedAbs, err := filepath.Abs(reserved)
		if err != nil {
			continue
		}
		if resolved, err := ResolveSymlink(reservedAbs); err == nil {
			reservedAbs = resolved
		}
		reservedAbs = filepath.Clean(reservedAbs)

		if strings.EqualFold(absPath, reservedAbs) {
			return true
		}

		prefix := strings.ToLower(reservedAbs) + string(os.PathSeparator)
		if strings.HasPrefix(strings.ToLower(absPath), prefix) {
			if isUserTempDirectory(absPath) {
				continue
			}
			return true
		}
	}

	return false
}

func reservedDirectories() []string {
	var dirs []string

	switch runtime.GOOS {
	case "windows":
		dirs = []string{
			`C:\Windows`,
			`C:\Program Files`,
			`C:\Program Files (x86)`,
			`C:\System32`,
		}
	case "darwin":
		dirs = []string{
			"/System", "/usr/bin", "/usr/sbin", "/bin", "/sbin", "/etc",
			"/var/log", "/var/db", "/var/root", "/Library/System", "/private/etc",
		}
	default:
		dirs = []string{
			"/bin", "/sbin", "/usr/bin", "/usr/sbin", "/etc", "/boot",
			"/dev", "/proc", "/sys", "/var/log", "/var/lib", "/var/cache", "/root",
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".ssh"), filepath.Join(home, ".gnupg"))
	}

	return dirs
}

func isUserTempDirectory(path string) bool {
	switch runtime.GOOS {
	case "darwin":
		if strings.Contains(path, "/var/folders/") {
			return true
		}
	case "linux":
		if strings.HasPrefix(path, "/tmp/") || path == "/tmp" {
			return true
		}
	case "windows":
		lower := strings.ToLower(path)
		if strings.Contains(lower, `\temp\`) || strings.Contains(lower, `\tmp\`) {
			return true
		}
	}

	systemTemp := filepath.Clean(os.TempDir())
	return strings.HasPrefix(filepath.Clean(path), systemTemp)
}
