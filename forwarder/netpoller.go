package forwarder

import "time"

// Event is one readiness notification. Readable/Writable/Err are not
// mutually exclusive — a single Wait can report a socket both readable
// and erroring in the same call.
type Event struct {
	Readable bool
	Writable bool
	Err      bool
	Token    *Token
}

// netpoller is the portable readiness-notification contract every
// reactor drives. epoll_linux.go backs it with golang.org/x/sys/unix
// epoll on Linux; poll_other.go backs it with unix.Poll everywhere else,
// so the reactor loop itself never branches on GOOS.
// Read interest starts enabled on Add; the reactor withdraws it
// (DisableRead) while a connection's peer has undrained output, which is
// how backpressure propagates to the source socket.
type netpoller interface {
	Add(fd int, tok *Token) error
	EnableRead(fd int) error
	DisableRead(fd int) error
	EnableWrite(fd int) error
	DisableWrite(fd int) error
	Remove(fd int) error
	Wait(timeout time.Duration) ([]Event, error)
	Close() error
}

func newPoller() (netpoller, error) {
	return newPlatformPoller()
}
