package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NewHostKeyCallback returns a host key check backed by the known_hosts file
// at path. An empty path disables checking.
//
// Hosts missing from the file are trusted on first use and appended to it.
// A host listed with a different key is rejected. The file and its parent
// directory are created if needed.
func NewHostKeyCallback(path string, logger zerolog.Logger) (ssh.HostKeyCallback, error) {
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // User explicitly disabled host key checking.
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("creating known_hosts file: %w", err)
	}
	_ = f.Close()

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}

	var (
		mu sync.Mutex
		// learned holds keys added since the file was loaded.
		learned = make(map[string]ssh.PublicKey)
	)
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("host key mismatch for %s (possible MITM attack): %w", hostname, err)
		}

		host := knownhosts.Normalize(hostname)

		mu.Lock()
		defer mu.Unlock()

		if prev, ok := learned[host]; ok {
			if bytes.Equal(prev.Marshal(), key.Marshal()) {
				return nil
			}
			return fmt.Errorf("host key mismatch for %s (possible MITM attack)", hostname)
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // Path is from user config.
		if err != nil {
			return fmt.Errorf("opening known_hosts for writing: %w", err)
		}
		defer f.Close()

		if _, err := f.WriteString(knownhosts.Line([]string{host}, key) + "\n"); err != nil {
			return fmt.Errorf("writing to known_hosts: %w", err)
		}
		learned[host] = key

		logger.Info().Str("host", hostname).Str("file", path).Msg("ssh: added host key")
		return nil
	}, nil
}
