// Package datapath elaborates a path pattern against the storage
// backend into a concrete list of files. A pattern is an exact file
// path, a directory (meaning every direct child), or a glob. The
// storage backend is the file package's registered implementations, so
// patterns may name local paths or S3 URLs alike.
package datapath

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// NotFoundError reports a pattern that matched zero files. Pattern
// misses are always fatal: an empty-but-valid dataset must be
// expressed through explicit empty files, never through a miss.
type NotFoundError struct {
	Pattern string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no files found for %s", e.Pattern)
}

// globMeta are the characters that make a pattern a glob.
const globMeta = "*?["

// Elaborate expands the pattern into a sorted, non-empty list of file
// paths. Directories contribute their direct children; globs match
// segment-wise, so "*" does not cross path separators. The optional
// filter is applied to each candidate's base name. Zero matches yield
// a *NotFoundError.
func Elaborate(ctx context.Context, pattern string, filter func(name string) bool) ([]string, error) {
	var matches []string
	var err error
	if strings.ContainsAny(pattern, globMeta) {
		matches, err = expandGlob(ctx, pattern, filter)
	} else {
		matches, err = expandPlain(ctx, pattern, filter)
	}
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &NotFoundError{Pattern: pattern}
	}
	sort.Strings(matches)
	return matches, nil
}

// expandPlain handles exact file and directory patterns. The backend
// has no first-class directory stat, so the pattern is first listed as
// a prefix; children found mean it is a directory, otherwise a
// successful Stat means it is a plain file.
func expandPlain(ctx context.Context, pattern string, filter func(string) bool) ([]string, error) {
	var matches []string
	prefix := strings.TrimSuffix(pattern, "/")
	lister := file.List(ctx, prefix, false /*recursive*/)
	for lister.Scan() {
		p := lister.Path()
		if p == prefix || lister.IsDir() {
			continue
		}
		if filter != nil && !filter(path.Base(p)) {
			continue
		}
		matches = append(matches, p)
	}
	listErr := lister.Err()
	if len(matches) > 0 {
		// Children were found, so the pattern is a directory; a
		// listing that failed partway must not pass off the entries
		// it did yield as the whole dataset.
		if listErr != nil {
			return nil, errors.Wrapf(listErr, "list %s", prefix)
		}
		return matches, nil
	}
	if _, err := file.Stat(ctx, prefix); err == nil {
		if filter == nil || filter(path.Base(prefix)) {
			matches = append(matches, prefix)
		}
		return matches, nil
	}
	// Not a plain file either. A list error on a plain file is
	// expected backend behavior, but here it is the real failure:
	// surface it rather than degrading to a pattern miss.
	if listErr != nil {
		return nil, errors.Wrapf(listErr, "list %s", prefix)
	}
	return nil, nil
}

func expandGlob(ctx context.Context, pattern string, filter func(string) bool) ([]string, error) {
	base := globBase(pattern)
	lister := file.List(ctx, base, true /*recursive*/)
	var matches []string
	for lister.Scan() {
		if lister.IsDir() {
			continue
		}
		p := lister.Path()
		ok, err := path.Match(pattern, p)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %s: %v", pattern, err)
		}
		if !ok {
			continue
		}
		if filter != nil && !filter(path.Base(p)) {
			continue
		}
		matches = append(matches, p)
	}
	if err := lister.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

// globBase returns the pattern's longest directory prefix containing
// no glob metacharacter; listing starts there.
func globBase(pattern string) string {
	i := strings.IndexAny(pattern, globMeta)
	slash := strings.LastIndex(pattern[:i], "/")
	if slash < 0 {
		return "."
	}
	return pattern[:slash]
}
