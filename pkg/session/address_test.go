package session

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Run("is deterministic for the same label", func(t *testing.T) {
		first, err := Resolve("default")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		second, err := Resolve("default")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if first.Addr != second.Addr {
			t.Errorf("expected stable address, got %q then %q", first.Addr, second.Addr)
		}
		if first.PIDFile != second.PIDFile {
			t.Errorf("expected stable pid file, got %q then %q", first.PIDFile, second.PIDFile)
		}
	})

	t.Run("distinct labels get distinct addresses", func(t *testing.T) {
		a, err := Resolve("agent1")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		b, err := Resolve("agent2")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if a.Addr == b.Addr {
			t.Errorf("labels agent1 and agent2 resolved to the same address %q", a.Addr)
		}
	})

	t.Run("rejects invalid labels before path construction", func(t *testing.T) {
		if _, err := Resolve("../escape"); err == nil {
			t.Fatal("expected validation error")
		}
		if _, err := Resolve(""); err == nil {
			t.Fatal("expected validation error for empty label")
		}
	})

	t.Run("embeds the label in the address", func(t *testing.T) {
		addr, err := Resolve("twitter")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if runtime.GOOS == "windows" {
			if addr.Network != "tcp" {
				t.Errorf("expected tcp network on windows, got %q", addr.Network)
			}
			return
		}
		if addr.Network != "unix" {
			t.Errorf("expected unix network, got %q", addr.Network)
		}
		if !strings.Contains(addr.Addr, "agent-browser-twitter.sock") {
			t.Errorf("socket path %q does not embed label", addr.Addr)
		}
	})
}

func TestDiscovery(t *testing.T) {
	t.Run("round-trips the resolved port", func(t *testing.T) {
		addr := &Address{
			Network:  "tcp",
			Addr:     "127.0.0.1:51234",
			PortFile: filepath.Join(t.TempDir(), "agent-browser-default.port"),
		}
		if err := addr.WriteDiscovery(); err != nil {
			t.Fatalf("WriteDiscovery failed: %v", err)
		}
		port, err := addr.ReadDiscovery()
		if err != nil {
			t.Fatalf("ReadDiscovery failed: %v", err)
		}
		if port != 51234 {
			t.Errorf("ReadDiscovery = %d, want 51234", port)
		}
	})

	t.Run("write is a no-op without a port file", func(t *testing.T) {
		addr := &Address{Network: "unix", Addr: "/tmp/agent-browser-x.sock"}
		if err := addr.WriteDiscovery(); err != nil {
			t.Errorf("WriteDiscovery on unix address should be a no-op, got %v", err)
		}
	})

	t.Run("rejects a malformed discovery file", func(t *testing.T) {
		portFile := filepath.Join(t.TempDir(), "agent-browser-bad.port")
		if err := os.WriteFile(portFile, []byte("not-a-port\n"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		addr := &Address{Network: "tcp", PortFile: portFile}
		if _, err := addr.ReadDiscovery(); err == nil {
			t.Error("expected error for malformed discovery file")
		}
	})

	t.Run("rejects a malformed tcp address", func(t *testing.T) {
		addr := &Address{
			Network:  "tcp",
			Addr:     "no-port-here",
			PortFile: filepath.Join(t.TempDir(), "agent-browser-y.port"),
		}
		if err := addr.WriteDiscovery(); err == nil {
			t.Error("expected error for address without a port")
		}
	})
}

func TestPortFor(t *testing.T) {
	seen := map[string]int{}
	for _, label := range []string{"default", "agent1", "agent2", "ci"} {
		port := portFor(label)
		if port < portBase || port >= portBase+portRange {
			t.Errorf("port %d for %q outside dynamic range", port, label)
		}
		seen[label] = port
	}
	if seen["default"] != portFor("default") {
		t.Error("portFor is not deterministic")
	}
}
