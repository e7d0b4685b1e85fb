// Package activation picks up listeners passed in by systemd socket activation.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// firstFD is the first descriptor systemd passes (after stdin, stdout, stderr)
const firstFD = 3

// Socket is one activated listener with its FileDescriptorName
type Socket struct {
	Name string
	net.Listener
}

// Sockets returns the listeners systemd passed to this process, or nil when
// the process was not socket activated. The activation variables are removed
// from the environment so children do not inherit them.
func Sockets() ([]Socket, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		return nil, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}

	names := fdNames(os.Getenv("LISTEN_FDNAMES"), numFDs)

	sockets := make([]Socket, 0, numFDs)
	for i := 0; i < numFDs; i++ {
		fd := firstFD + i
		file := os.NewFile(uintptr(fd), "systemd-socket-"+names[i])
		if file == nil {
			closeAll(sockets)
			return nil, fmt.Errorf("failed to create file for fd %d", fd)
		}

		ln, err := net.FileListener(file)
		_ = file.Close() // the listener holds its own dup
		if err != nil {
			closeAll(sockets)
			return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
		}

		sockets = append(sockets, Socket{Name: names[i], Listener: ln})
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return sockets, nil
}

// fdNames splits LISTEN_FDNAMES, padding missing names with "unknown" as
// systemd does
func fdNames(raw string, n int) []string {
	names := make([]string, n)
	var given []string
	if raw != "" {
		given = strings.Split(raw, ":")
	}
	for i := range names {
		if i < len(given) && given[i] != "" {
			names[i] = given[i]
		} else {
			names[i] = "unknown"
		}
	}
	return names
}

// Select returns the socket named name, or the first socket when name is
// empty or no socket carries it. Unselected sockets are closed.
func Select(sockets []Socket, name string) net.Listener {
	if len(sockets) == 0 {
		return nil
	}

	pick := 0
	if name != "" {
		for i, s := range sockets {
			if s.Name == name {
				pick = i
				break
			}
		}
	}

	for i, s := range sockets {
		if i != pick {
			_ = s.Close()
		}
	}
	return sockets[pick].Listener
}

// Listen returns the activated listener named name if the process was socket
// activated, and otherwise listens on addr. activated reports which happened.
func Listen(addr, name string) (ln net.Listener, activated bool, err error) {
	sockets, err := Sockets()
	if err != nil {
		return nil, false, err
	}
	if ln := Select(sockets, name); ln != nil {
		return ln, true, nil
	}

	ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, false, nil
}

func closeAll(sockets []Socket) {
	for _, s := range sockets {
		_ = s.Close()
	}
}
