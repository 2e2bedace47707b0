// Package pgn reads tag pairs from PGN game logs.
package pgn

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/periodrank/internal/domain/extract"
)

const maxLineSize = 1 << 20

// Scan reads r line by line and returns every [Key "Value"] tag pair with its
// 1-based line number. Movetext, brace comments and blank lines are skipped.
// A tag line that does not parse is returned with Err set, so the extractor
// can drop that one game. Only read failures are returned as errors.
func Scan(r io.Reader) ([]extract.Tag, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		tags      []extract.Tag
		line      int
		inComment bool
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if inComment {
			if strings.Contains(text, "}") {
				inComment = opensComment(text)
			}
			continue
		}
		if !strings.HasPrefix(text, "[") {
			inComment = opensComment(text)
			continue
		}
		tag, err := parseTag(text)
		if err != nil {
			tag.Err = fmt.Errorf("line %d: %w", line, err)
		}
		tag.Line = line
		tags = append(tags, tag)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read pgn: %w", err)
	}
	return tags, nil
}

// opensComment reports whether a { on the line is left unclosed.
func opensComment(text string) bool {
	return strings.LastIndex(text, "{") > strings.LastIndex(text, "}")
}

// ReadFile scans the file at path. The returned id is the file's base name,
// which identifies the rating period.
func ReadFile(path string) (id string, tags []extract.Tag, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open pgn: %w", err)
	}
	defer f.Close()

	tags, err = Scan(f)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return PeriodID(path), tags, nil
}

// PeriodID returns the period identifier for a log path.
func PeriodID(path string) string {
	return filepath.Base(path)
}

// parseTag splits a tag line. On failure the returned tag still carries the
// key and raw value when they can be told apart.
func parseTag(text string) (extract.Tag, error) {
	body := strings.TrimSpace(strings.TrimPrefix(text, "["))
	closed := strings.HasSuffix(body, "]")
	body = strings.TrimSpace(strings.TrimSuffix(body, "]"))

	key, rest, ok := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)
	if !ok || key == "" {
		return extract.Tag{Key: body}, fmt.Errorf("%w: %q", ErrBadTag, text)
	}
	if !closed {
		return extract.Tag{Key: key, Value: rest}, fmt.Errorf("%w: %s has no closing bracket", ErrBadTag, key)
	}
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return extract.Tag{Key: key, Value: rest}, fmt.Errorf("%w: value of %s is not quoted", ErrBadTag, key)
	}

	return extract.Tag{Key: key, Value: unescape(rest[1 : len(rest)-1])}, nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
