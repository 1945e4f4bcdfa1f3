package migrate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseVersion accepts the YYYYMMDDHHMMSS prefix used in migration names.
func ParseVersion(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("version %q is not YYYYMMDDHHMMSS", raw)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

const template = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// Create writes an empty goose SQL migration stamped with now and returns its
// path.
func Create(dir, name string, now time.Time) (string, error) {
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	target := filepath.Join(dir, now.UTC().Format(versionLayout)+"_"+s+".sql")
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, template, s); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}

// Validate checks every .sql file in fsys: names follow
// <version>_<slug>.sql, versions are unique, and the Up section precedes the
// Down section.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	seen := make(map[string]string, len(names))
	for _, name := range names {
		m := fileNameRe.FindStringSubmatch(path.Base(name))
		if m == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if _, err := ParseVersion(m[1]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if other, dup := seen[m[1]]; dup {
			return fmt.Errorf("%s: version already used by %s", name, other)
		}
		seen[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		up := bytes.Index(body, []byte("-- +goose Up"))
		down := bytes.Index(body, []byte("-- +goose Down"))
		switch {
		case up < 0:
			return fmt.Errorf("%s: missing -- +goose Up", name)
		case down < 0:
			return fmt.Errorf("%s: missing -- +goose Down", name)
		case down < up:
			return fmt.Errorf("%s: Down section precedes Up", name)
		}
	}
	return nil
}
