package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultLocalBackupsRoot is the mount point local remotes are created under
// when no explicit directory list is configured.
const DefaultLocalBackupsRoot = "/backupsLocales"

const (
	backupsRootEnv       = "BACKUPER_LOCAL_BACKUPS_DIR"
	legacyDirectoriesEnv = "RCLONE_LOCAL_DIRECTORIES"
)

// LocalDirectory is one labelled directory offered for local remotes.
type LocalDirectory struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

var directorySeparators = regexp.MustCompile(`[;,\n]+`)

// StripEnclosingQuotes returns value without matching surrounding quotes.
func StripEnclosingQuotes(value string) string {
	text := strings.TrimSpace(value)
	if len(text) >= 2 && text[0] == text[len(text)-1] && (text[0] == '"' || text[0] == '\'') {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

// ParseLocalDirectoryConfig parses a delimited list of labelled directories.
// Entries are separated by ";", "," or newlines and may carry a label prefix
// ("Label|/path").
func ParseLocalDirectoryConfig(value string) []LocalDirectory {
	var entries []LocalDirectory
	if value == "" {
		return entries
	}
	for _, raw := range directorySeparators.Split(value, -1) {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		var label, path string
		if before, after, found := strings.Cut(item, "|"); found {
			path = StripEnclosingQuotes(after)
			label = StripEnclosingQuotes(before)
		} else {
			path = StripEnclosingQuotes(before)
		}
		if path == "" {
			continue
		}
		if label == "" {
			label = path
		}
		entries = append(entries, LocalDirectory{Label: label, Path: path})
	}
	return entries
}

// LocalBackupsRoot returns the absolute default directory for local remotes.
func LocalBackupsRoot() string {
	candidate := StripEnclosingQuotes(os.Getenv(backupsRootEnv))
	if candidate == "" {
		candidate = DefaultLocalBackupsRoot
	}
	return absPath(expandHome(candidate))
}

// LoadLocalDirectoryEntries returns the configured directories, falling back
// to the default backups root (created on demand). Duplicate paths are
// dropped keeping the first label.
func LoadLocalDirectoryEntries() []LocalDirectory {
	entries := ParseLocalDirectoryConfig(os.Getenv(legacyDirectoriesEnv))
	if len(entries) == 0 {
		root := LocalBackupsRoot()
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil
		}
		entries = []LocalDirectory{{Label: root, Path: root}}
	}

	normalized := make([]LocalDirectory, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		path := absPath(expandHome(entry.Path))
		if path == "" {
			continue
		}
		key := filepath.Clean(path)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		label := entry.Label
		if label == "" {
			label = path
		}
		normalized = append(normalized, LocalDirectory{Label: label, Path: path})
	}
	return normalized
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
