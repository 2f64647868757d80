package session

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Port range used when local domain sockets are unavailable. The isolation
// label hashes into [portBase, portBase+portRange), the IANA dynamic range.
const (
	portBase  = 49152
	portRange = 16384
)

// Address is the resolved control-channel endpoint for one isolation label.
// The same label always resolves to the same address within one host and
// user, so a second client process can find a daemon started by a first.
type Address struct {
	// Network is "unix" on platforms with local domain sockets, "tcp"
	// otherwise.
	Network string

	// Addr is the socket path (unix) or loopback host:port (tcp).
	Addr string

	// PIDFile records the daemon process id for liveness checks.
	PIDFile string

	// PortFile is the discovery file holding the chosen port. Empty on
	// platforms using domain sockets.
	PortFile string
}

// Resolve maps an isolation label to its control-channel address and
// lifecycle file paths. The label is validated before it is interpolated
// into any path. The per-user runtime directory is created on first use
// with owner-only permissions.
func Resolve(label string) (*Address, error) {
	if err := Validate(label); err != nil {
		return nil, err
	}

	dir, err := runtimeDir()
	if err != nil {
		return nil, err
	}

	addr := &Address{
		PIDFile: filepath.Join(dir, fmt.Sprintf("agent-browser-%s.pid", label)),
	}

	if runtime.GOOS == "windows" {
		addr.Network = "tcp"
		addr.Addr = fmt.Sprintf("127.0.0.1:%d", portFor(label))
		addr.PortFile = filepath.Join(dir, fmt.Sprintf("agent-browser-%s.port", label))
		return addr, nil
	}

	addr.Network = "unix"
	addr.Addr = filepath.Join(dir, fmt.Sprintf("agent-browser-%s.sock", label))
	return addr, nil
}

// WriteDiscovery persists the resolved port so clients on socketless
// platforms can find the daemon. No-op when a domain socket is in use.
func (a *Address) WriteDiscovery() error {
	if a.PortFile == "" {
		return nil
	}
	_, port, ok := strings.Cut(a.Addr, ":")
	if !ok {
		return fmt.Errorf("malformed tcp address %q", a.Addr)
	}
	return os.WriteFile(a.PortFile, []byte(port+"\n"), 0o600)
}

// ReadDiscovery returns the port recorded in the discovery file.
func (a *Address) ReadDiscovery() (int, error) {
	data, err := os.ReadFile(a.PortFile)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed discovery file %s: %w", a.PortFile, err)
	}
	return port, nil
}

// Cleanup removes the lifecycle files and, for domain sockets, the socket
// itself. Best-effort: used on daemon shutdown and fatal-error paths.
func (a *Address) Cleanup() {
	if a.Network == "unix" {
		_ = os.Remove(a.Addr)
	}
	_ = os.Remove(a.PIDFile)
	if a.PortFile != "" {
		_ = os.Remove(a.PortFile)
	}
}

// portFor deterministically hashes an isolation label into the dynamic
// port range.
func portFor(label string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	return portBase + int(h.Sum32()%portRange)
}

// runtimeDir returns the per-user temporary directory holding sockets and
// lifecycle files, creating it with owner-only permissions.
func runtimeDir() (string, error) {
	name := "agent-browser"
	if uid := os.Getuid(); uid >= 0 {
		name = fmt.Sprintf("agent-browser-%d", uid)
	}
	dir := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create runtime directory: %w", err)
	}
	return dir, nil
}
