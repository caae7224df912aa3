package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/cacheproxy/internal/cache"
	"github.com/die-net/cacheproxy/internal/conn"
	"github.com/die-net/cacheproxy/internal/testutil"
)

func TestParseTCPKeepAlive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:45:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}},
		{in: "10: 5 :2", want: net.KeepAliveConfig{Enable: true, Idle: 10 * time.Second, Interval: 5 * time.Second, Count: 2}},
		{in: "", wantErr: true},
		{in: "45:45", wantErr: true},
		{in: "0:45:3", wantErr: true},
		{in: "45:x:3", wantErr: true},
		{in: "45:45:-1", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTCPKeepAlive(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err=%v wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("%q: got %+v want %+v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info().Msg("dropped")
	logger.Warn().Uint64("session", 7).Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"session":7`) || !strings.Contains(out, `"message":"kept"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Fatal("expected error for bad level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Fatal("expected error for bad format")
	}
}

func TestDefaultUpstream(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")
	if got := defaultUpstream(); got != "direct://" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("all_proxy", "socks5://127.0.0.1:1080")
	if got := defaultUpstream(); got != "socks5://127.0.0.1:1080" {
		t.Fatalf("got %q", got)
	}
}

func fetch(t *testing.T, proxyAddr, url, host string) string {
	t.Helper()

	c, err := net.DialTimeout("tcp", proxyAddr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(c, "GET "+url+" HTTP/1.1\r\nHost: "+host+"\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	resp, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	return string(resp)
}

func TestServeRestoresAndPersistsCache(t *testing.T) {
	t.Parallel()

	const (
		restoredKey  = "http://example.invalid/"
		restoredResp = "HTTP/1.1 200 OK\r\nContent-Length: 8\r\n\r\nrestored"
		originResp   = "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: close\r\n\r\nfresh"
	)

	dir := t.TempDir()
	seed := cache.New()
	seed.Insert(restoredKey, []byte(restoredResp))
	if err := seed.Persist(dir); err != nil {
		t.Fatal(err)
	}

	originCtx, originCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer originCancel()
	origin := testutil.StartOrigin(originCtx, t, []byte(originResp))
	host := origin.Addr().String()
	freshKey := "http://" + host + "/"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrs := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, zerolog.Nop(), options{
			listen:             "127.0.0.1:0",
			backlog:            conn.DefaultBacklog,
			upstream:           "direct://",
			cacheDir:           dir,
			dialTimeout:        2 * time.Second,
			negotiationTimeout: 2 * time.Second,
		}, func(addr string) { addrs <- addr })
	}()

	var proxyAddr string
	select {
	case proxyAddr = <-addrs:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("proxy never became ready")
	}

	if got := fetch(t, proxyAddr, restoredKey, "example.invalid"); got != restoredResp {
		t.Fatalf("restored entry served as %q", got)
	}
	if got := fetch(t, proxyAddr, freshKey, host); got != originResp {
		t.Fatalf("origin response = %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	for _, name := range []string{"index.txt", cache.FileName(restoredKey), cache.FileName(freshKey)} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("snapshot missing %s: %v", name, err)
		}
	}

	restored := cache.New()
	n, err := restored.Restore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("restored %d entries, want 2", n)
	}
	if got, ok := restored.Lookup(freshKey); !ok || string(got) != originResp {
		t.Fatalf("fresh entry = %q, %v", got, ok)
	}
}
