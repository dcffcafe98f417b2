package network

import (
	"fmt"
	"net"
	"strconv"

	"github.com/llonebot/llbot-cli/internal/domain"
)

// FindAvailablePort returns the first port in [start, end) that can be
// bound on the loopback interface.
func FindAvailablePort(start, end int) (int, error) {
	for port := start; port < end; port++ {
		if portFree(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("scan [%d, %d): %w", start, end, domain.ErrNoFreePort)
}

// portFree asks the OS whether the port can be bound right now. The
// listener is closed immediately; the worker binds the port itself.
func portFree(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
