package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// KeySourceAgent names the running ssh-agent as the key source.
const KeySourceAgent = "agent"

const agentDialTimeout = 5 * time.Second

// HaveAgent reports whether an ssh-agent socket is advertised.
func HaveAgent() bool {
	return os.Getenv("SSH_AUTH_SOCK") != ""
}

// Signers returns the keys named by source: none for "", the agent's keys
// for KeySourceAgent, otherwise the unencrypted private key in that file.
func Signers(source string) ([]ssh.Signer, error) {
	switch source {
	case "":
		return nil, nil
	case KeySourceAgent:
		return agentKeys()
	}

	pem, err := os.ReadFile(source) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	key, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", source, err)
	}
	return []ssh.Signer{key}, nil
}

// agentKeys lists the agent's keys. The agent conn backs the returned
// signers, so it stays open for the life of the process.
func agentKeys() ([]ssh.Signer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("ssh agent: SSH_AUTH_SOCK not set")
	}

	c, err := net.DialTimeout("unix", sock, agentDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("ssh agent: %w", err)
	}
	keys, err := agent.NewClient(c).Signers()
	if err == nil && len(keys) == 0 {
		err = errors.New("no keys loaded")
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ssh agent: %w", err)
	}
	return keys, nil
}
