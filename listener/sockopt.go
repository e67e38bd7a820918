package listener

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func domainFor(host string) int {
	ip := net.ParseIP(host)
	if ip != nil && ip.To4() == nil {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

func sockaddrFor(host string, port int) (unix.Sockaddr, error) {
	if domainFor(host) == unix.AF_INET6 {
		var addr [16]byte
		ip := net.ParseIP(host)
		if ip != nil {
			copy(addr[:], ip.To16())
		}
		return &unix.SockaddrInet6{Port: port, Addr: addr}, nil
	}

	var addr [4]byte
	if host == "" {
		// zero value means INADDR_ANY
	} else if ip := net.ParseIP(host); ip != nil {
		copy(addr[:], ip.To4())
	}
	return &unix.SockaddrInet4{Port: port, Addr: addr}, nil
}

// applySockopts sets the listening-socket options before bind.
func applySockopts(fd int, cfg Config) error {
	if cfg.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return err
		}
	}
	if cfg.ReusePort {
		if err := setReusePort(fd); err != nil {
			return err
		}
	}
	if cfg.LingerSec > 0 {
		l := &unix.Linger{Onoff: 1, Linger: int32(cfg.LingerSec)}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l); err != nil {
			return err
		}
	}
	if cfg.RecvBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBuf); err != nil {
			return err
		}
	}
	if cfg.SendBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBuf); err != nil {
			return err
		}
	}
	// TCP_NODELAY is set on accepted connections by the forwarder, not on
	// the listening socket itself — it has no effect there.
	return nil
}
