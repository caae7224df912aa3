package cache

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const indexFile = "index.txt"

// maxKeyLen bounds a single index line when restoring.
const maxKeyLen = 1 << 20

// DefaultDir returns the snapshot directory used when none is configured.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "proxy_cache")
}

// FileName returns the name of the content file holding key's response.
func FileName(key string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return strconv.FormatUint(h.Sum64(), 10)
}

// Persist writes every entry to dir, creating it if needed.
//
// Persistence is best-effort: a failure writing one entry does not stop the
// others, and all failures are returned joined together. Keys containing a
// newline cannot be represented in the index and are skipped.
func (s *Store) Persist(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	entries := s.snapshot()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	idx, err := os.Create(filepath.Join(dir, indexFile)) //nolint:gosec // Path is from user config.
	if err != nil {
		return fmt.Errorf("create cache index: %w", err)
	}

	var errs []error
	w := bufio.NewWriter(idx)
	for _, k := range keys {
		if strings.ContainsAny(k, "\r\n") {
			errs = append(errs, fmt.Errorf("skip key %q: contains a line break", k))
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, FileName(k)), entries[k], 0o600); err != nil {
			errs = append(errs, fmt.Errorf("write entry %q: %w", k, err))
			continue
		}
		_, _ = w.WriteString(k)
		_ = w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("write cache index: %w", err))
	}
	if err := idx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache index: %w", err))
	}
	return errors.Join(errs...)
}

// Restore loads a snapshot previously written by Persist and returns the
// number of entries inserted. A missing dir or index is not an error.
// Entries whose content file cannot be read are skipped and reported in the
// returned error; existing entries are never overwritten.
func (s *Store) Restore(dir string) (int, error) {
	idx, err := os.Open(filepath.Join(dir, indexFile)) //nolint:gosec // Path is from user config.
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open cache index: %w", err)
	}
	defer idx.Close()

	var (
		n    int
		errs []error
	)
	sc := bufio.NewScanner(idx)
	sc.Buffer(make([]byte, 0, 4096), maxKeyLen)
	for sc.Scan() {
		key := sc.Text()
		if key == "" {
			continue
		}
		resp, err := os.ReadFile(filepath.Join(dir, FileName(key))) //nolint:gosec // Path is derived from a hash.
		if err != nil {
			errs = append(errs, fmt.Errorf("read entry %q: %w", key, err))
			continue
		}
		if s.Insert(key, resp) {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read cache index: %w", err))
	}
	return n, errors.Join(errs...)
}
