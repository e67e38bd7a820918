// Package listener implements the bind/listen layer: a raw,
// non-blocking listening socket per bind address with
// SO_REUSEADDR/SO_REUSEPORT/TCP_NODELAY/SO_LINGER and buffer-size
// options set via golang.org/x/sys/unix, and an explicit
// Assigned/Ready/Paused state machine so config reloads can take a
// listener out of rotation without closing its socket.
package listener

import (
	"sync"

	"golang.org/x/sys/unix"

	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// State is a listener's position in the Assigned/Ready/Paused
// lifecycle.
type State int

const (
	StateAssigned State = iota
	StateReady
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	default:
		return "assigned"
	}
}

// Config controls one listener's socket options.
type Config struct {
	Name      string
	BindAddr  string // host:port
	Backlog   int
	ReuseAddr bool
	ReusePort bool
	NoDelay   bool
	LingerSec int // values <= 0 leave SO_LINGER untouched
	RecvBuf   int
	SendBuf   int

	// ProxyProto makes the forwarder consume a PROXY protocol v1/v2
	// header from each accepted connection before routing it.
	ProxyProto bool
}

func DefaultConfig(name, bindAddr string) Config {
	return Config{
		Name:      name,
		BindAddr:  bindAddr,
		Backlog:   1024,
		ReuseAddr: true,
		ReusePort: true,
		NoDelay:   true,
		RecvBuf:   2 << 20,
		SendBuf:   2 << 20,
	}
}

// Listener wraps one raw listening socket plus its lifecycle state.
type Listener struct {
	cfg   Config
	mu    sync.Mutex
	state State
	fd    int
}

func New(cfg Config) *Listener {
	return &Listener{cfg: cfg, state: StateAssigned, fd: -1}
}

func (l *Listener) Name() string     { return l.cfg.Name }
func (l *Listener) BindAddr() string { return l.cfg.BindAddr }

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// FD returns the raw, non-blocking listening file descriptor, or -1 if
// Bind has not been called yet. The forwarder registers this directly
// with its netpoller.
func (l *Listener) FD() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fd
}

// Bind creates, configures, binds and listens on cfg.BindAddr, moving the
// listener Assigned→Ready. Calling Bind twice on an already-Ready
// listener is a no-op.
func (l *Listener) Bind() liberr.Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateReady {
		return nil
	}

	host, port, err := splitHostPort(l.cfg.BindAddr)
	if err != nil {
		return liberr.ErrCodeBindFailed.Error(err)
	}

	fd, err := unix.Socket(domainFor(host), unix.SOCK_STREAM, 0)
	if err != nil {
		return liberr.ErrCodeBindFailed.Error(err)
	}

	if err := applySockopts(fd, l.cfg); err != nil {
		_ = unix.Close(fd)
		return liberr.ErrCodeBindFailed.Error(err)
	}

	sa, err := sockaddrFor(host, port)
	if err != nil {
		_ = unix.Close(fd)
		return liberr.ErrCodeBindFailed.Error(err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return liberr.ErrCodeBindFailed.Error(err)
	}

	backlog := l.cfg.Backlog
	if backlog <= 0 {
		backlog = 1024
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return liberr.ErrCodeBindFailed.Error(err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return liberr.ErrCodeBindFailed.Error(err)
	}

	l.fd = fd
	l.state = StateReady
	return nil
}

// Pause takes a Ready listener out of rotation without closing its
// socket — the forwarder stops registering it with new reactors, but the
// backlog keeps accepting at the kernel level up to cfg.Backlog so no
// connection is refused during a brief reload window.
func (l *Listener) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateReady {
		l.state = StatePaused
	}
}

// Resume moves a Paused listener back to Ready.
func (l *Listener) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StatePaused {
		l.state = StateReady
	}
}

// Close closes the underlying socket and resets the listener to
// Assigned, so a later Bind call re-creates it from scratch.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	l.state = StateAssigned
	return err
}

