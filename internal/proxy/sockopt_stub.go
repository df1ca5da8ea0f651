//go:build !linux

package proxy

import (
	"errors"
	"net"
	"time"
)

// UserTimeoutSupported reports whether setUserTimeout has an effect.
const UserTimeoutSupported = false

func setUserTimeout(_ *net.TCPConn, _ time.Duration) error {
	return errors.New("tcp user timeout is only supported on linux")
}

func userTimeout(_ *net.TCPConn) (time.Duration, error) {
	return 0, errors.New("tcp user timeout is only supported on linux")
}
