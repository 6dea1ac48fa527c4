package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const dataDirName = ".taskflow"

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// FindProjectRoot walks up from cwd looking for a .git directory.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		info, statErr := os.Stat(filepath.Join(dir, ".git"))
		if statErr == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", NotInRepoError{}
		}
		dir = parent
	}
}

// SanitizePath converts an absolute path to a safe directory name.
// "/Users/abatilo/myproject" -> "Users-abatilo-myproject"
func SanitizePath(path string) string {
	result := unsafePathChars.ReplaceAllString(strings.TrimPrefix(path, "/"), "-")
	return strings.Trim(result, "-")
}

// DefaultDataDir returns ~/.taskflow/<sanitized-project-root>.
func DefaultDataDir() (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dataDirName, SanitizePath(root)), nil
}
