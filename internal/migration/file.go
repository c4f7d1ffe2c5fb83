package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// File is a parsed migration file.
type File struct {
	Version     uint32
	Description string
	Up          string
	Down        string
	Content     string
}

var (
	fileNameRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.sql$`)
	markerRe   = regexp.MustCompile(`(?mi)^\s*-- (UP|DOWN)\s*$`)

	sqlKeywords = []string{"CREATE", "ALTER", "DROP", "INSERT", "UPDATE", "DELETE"}
)

// FileName builds the canonical <version>_<slug>.sql name.
func FileName(version uint32, description string) string {
	return fmt.Sprintf("%d_%s.sql", version, slugify(description))
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// ParseFileName extracts the version from a migration file name.
func ParseFileName(name string) (uint32, error) {
	m := fileNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, fmt.Errorf("migration file name %q does not match <version>_<slug>.sql", name)
	}
	v, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("migration version in %q out of range: %w", name, err)
	}
	return uint32(v), nil
}

// Parse reads a migration file body. The description comes from a leading
// "-- Migration:" comment, the version from "-- Version:"; the body splits
// into -- UP and -- DOWN sections. Files with neither marker must contain at
// least one recognisable SQL statement.
func Parse(content string) (File, error) {
	f := File{
		Description: "Migration",
		Content:     content,
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-- Migration:"):
			f.Description = strings.TrimSpace(strings.TrimPrefix(trimmed, "-- Migration:"))
		case strings.HasPrefix(trimmed, "-- Version:"):
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "-- Version:"))
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return File{}, fmt.Errorf("invalid -- Version: header %q", raw)
			}
			f.Version = uint32(v)
		case trimmed == "" || strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "/*"):
			continue
		}
		if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
			break // headers live in the leading comment block only
		}
	}

	hasMarkers := markerRe.MatchString(content)
	f.Up, f.Down = splitSections(content)

	if !hasMarkers {
		upper := strings.ToUpper(content)
		hasSQL := false
		for _, kw := range sqlKeywords {
			if strings.Contains(upper, kw) {
				hasSQL = true
				break
			}
		}
		if !hasSQL {
			return File{}, fmt.Errorf("migration file does not contain recognizable SQL statements")
		}
		f.Up = content
	}

	return f, nil
}

// splitSections separates the -- UP and -- DOWN sections of a file body.
func splitSections(content string) (up, down string) {
	var (
		section   int // 0 = header, 1 = up, 2 = down
		upLines   []string
		downLines []string
	)

	for _, line := range strings.Split(content, "\n") {
		switch strings.ToUpper(strings.TrimSpace(line)) {
		case "-- UP":
			section = 1
			continue
		case "-- DOWN":
			section = 2
			continue
		}
		switch section {
		case 1:
			upLines = append(upLines, line)
		case 2:
			downLines = append(downLines, line)
		}
	}

	return strings.TrimSpace(strings.Join(upLines, "\n")), strings.TrimSpace(strings.Join(downLines, "\n"))
}

// LoadDir parses every migration file in a directory, ordered by version.
func LoadDir(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migration directory: %w", err)
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := ParseFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration file %q: %w", entry.Name(), err)
		}
		f, err := Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", entry.Name(), err)
		}
		if f.Version == 0 {
			f.Version = version
		}
		files = append(files, f)
	}

	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].Version < files[j-1].Version; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
	return files, nil
}

// CreateFile writes a new migration file skeleton into dir and returns its
// path.
func CreateFile(dir string, version uint32, description string) (string, error) {
	path := filepath.Join(dir, FileName(version, description))
	body := fmt.Sprintf(`-- Migration: %s
-- Version: %d

-- UP


-- DOWN

`, description, version)

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}
	return path, nil
}
