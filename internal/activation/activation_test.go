package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearActivationEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LISTEN_PID", "LISTEN_FDS", "LISTEN_FDNAMES"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestSockets_NoEnvironment(t *testing.T) {
	clearActivationEnv(t)

	sockets, err := Sockets()
	require.NoError(t, err)
	assert.Nil(t, sockets)
}

func TestSockets_WrongPID(t *testing.T) {
	clearActivationEnv(t)
	t.Setenv("LISTEN_PID", "99999999")
	t.Setenv("LISTEN_FDS", "1")

	sockets, err := Sockets()
	require.NoError(t, err)
	assert.Nil(t, sockets)
}

func TestSockets_InvalidEnvironment(t *testing.T) {
	tests := []struct {
		name string
		pid  string
		fds  string
	}{
		{name: "invalid pid", pid: "not-a-number", fds: "1"},
		{name: "invalid fds", pid: strconv.Itoa(os.Getpid()), fds: "not-a-number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearActivationEnv(t)
			t.Setenv("LISTEN_PID", tt.pid)
			t.Setenv("LISTEN_FDS", tt.fds)

			_, err := Sockets()
			assert.Error(t, err)
		})
	}
}

func TestSockets_ZeroFDs(t *testing.T) {
	clearActivationEnv(t)
	t.Setenv("LISTEN_PID", strconv.Itoa(os.Getpid()))
	t.Setenv("LISTEN_FDS", "0")

	sockets, err := Sockets()
	require.NoError(t, err)
	assert.Nil(t, sockets)
}

func TestFDNames(t *testing.T) {
	assert.Equal(t, []string{"unknown"}, fdNames("", 1))
	assert.Equal(t, []string{"webhook", "metrics"}, fdNames("webhook:metrics", 2))
	assert.Equal(t, []string{"webhook", "unknown", "unknown"}, fdNames("webhook", 3))
	assert.Equal(t, []string{"unknown", "b"}, fdNames(":b", 2))
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestSelect(t *testing.T) {
	assert.Nil(t, Select(nil, "webhook"))

	first, second := listen(t), listen(t)
	sockets := []Socket{{Name: "other", Listener: first}, {Name: "webhook", Listener: second}}

	got := Select(sockets, "webhook")
	assert.Same(t, second, got)

	// the unselected listener is closed
	_, err := first.Accept()
	assert.Error(t, err)
}

func TestSelect_FallsBackToFirst(t *testing.T) {
	first, second := listen(t), listen(t)

	got := Select([]Socket{{Name: "a", Listener: first}, {Name: "b", Listener: second}}, "missing")
	assert.Same(t, first, got)
}

func TestListen_WithoutActivation(t *testing.T) {
	clearActivationEnv(t)

	ln, activated, err := Listen("127.0.0.1:0", "webhook")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	assert.False(t, activated)
	assert.NotEmpty(t, ln.Addr().String())
}

func TestListen_InvalidAddress(t *testing.T) {
	clearActivationEnv(t)

	_, _, err := Listen("256.0.0.1:bad", "")
	assert.Error(t, err)
}

// Example demonstrates how socket activation detection works
func ExampleSockets() {
	sockets, err := Sockets()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if sockets == nil {
		fmt.Println("No socket activation detected")
	} else {
		fmt.Printf("Received %d systemd socket(s)\n", len(sockets))
	}
}
