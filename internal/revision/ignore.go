package revision

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultIgnoreFile is read from the new revision's tree root when present.
const DefaultIgnoreFile = ".apigovignore"

// Option configures a GitHistory.
type Option func(*GitHistory)

// WithExclude skips changed files matching any of the gitignore-style patterns.
func WithExclude(patterns ...string) Option {
	return func(h *GitHistory) {
		h.exclude = append(h.exclude, patterns...)
	}
}

// WithIgnoreFile sets the ignore file read from the target revision. An empty
// name disables it.
func WithIgnoreFile(name string) Option {
	return func(h *GitHistory) {
		h.ignoreFile = name
	}
}

// excludeMatcher combines the configured patterns with the ignore file found in
// c. It returns nil when nothing is excluded.
func (h *GitHistory) excludeMatcher(c *object.Commit) (gitignore.Matcher, error) {
	lines := append([]string(nil), h.exclude...)

	if h.ignoreFile != "" {
		f, err := c.File(h.ignoreFile)
		switch {
		case errors.Is(err, object.ErrFileNotFound):
		case err != nil:
			return nil, fmt.Errorf("%w: reading %s: %v", ErrRevisionAccess, h.ignoreFile, err)
		default:
			content, err := f.Contents()
			if err != nil {
				return nil, fmt.Errorf("%w: reading %s: %v", ErrRevisionAccess, h.ignoreFile, err)
			}
			lines = append(lines, parseIgnore(content)...)
		}
	}

	var patterns []gitignore.Pattern
	for _, line := range lines {
		if line = parseLine(line); line != "" {
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	return gitignore.NewMatcher(patterns), nil
}

func parseIgnore(content string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// parseLine returns the pattern on a gitignore line, or "" for comments and
// blank lines.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

func excluded(m gitignore.Matcher, name string) bool {
	return m != nil && m.Match(strings.Split(name, "/"), false)
}
