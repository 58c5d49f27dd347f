//go:build !windows

package ipc

import (
	"net"
	"os"
)

func newListener(socketPath string) (net.Listener, error) {
	os.Remove(socketPath) // remove stale socket file from a previous run
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	// Restrict the socket to its owner.
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}

func cleanupListener(socketPath string) {
	os.Remove(socketPath)
}

func dialSocket(socketPath string) (net.Conn, error) {
	return net.Dial("unix", socketPath)
}
