//go:build linux

package forwarder

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the production netpoller: one epoll instance per
// reactor, level-triggered so a partially-drained socket keeps firing
// until the reactor actually reads/writes it empty. Per-fd interest
// bits are tracked so read and write interest toggle independently.
type epollPoller struct {
	fd       int
	mu       sync.Mutex
	tokens   map[int]*Token
	interest map[int]uint32
	events   []unix.EpollEvent
}

func newPlatformPoller() (netpoller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		fd:       fd,
		tokens:   make(map[int]*Token, 1024),
		interest: make(map[int]uint32, 1024),
		events:   make([]unix.EpollEvent, 256),
	}, nil
}

func (p *epollPoller) Add(fd int, tok *Token) error {
	p.mu.Lock()
	p.tokens[fd] = tok
	p.interest[fd] = unix.EPOLLIN
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// mod sets and clears interest bits on an already-registered fd.
func (p *epollPoller) mod(fd int, set, clear uint32) error {
	p.mu.Lock()
	bits, ok := p.interest[fd]
	if !ok {
		p.mu.Unlock()
		return unix.EBADF
	}
	bits = (bits | set) &^ clear
	p.interest[fd] = bits
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: bits, Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) EnableRead(fd int) error   { return p.mod(fd, unix.EPOLLIN, 0) }
func (p *epollPoller) DisableRead(fd int) error  { return p.mod(fd, 0, unix.EPOLLIN) }
func (p *epollPoller) EnableWrite(fd int) error  { return p.mod(fd, unix.EPOLLOUT, 0) }
func (p *epollPoller) DisableWrite(fd int) error { return p.mod(fd, 0, unix.EPOLLOUT) }

func (p *epollPoller) Remove(fd int) error {
	p.mu.Lock()
	delete(p.tokens, fd)
	delete(p.interest, fd)
	p.mu.Unlock()
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Event, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		raw := p.events[i]
		tok, ok := p.tokens[int(raw.Fd)]
		if !ok {
			continue
		}
		out = append(out, Event{
			Readable: raw.Events&unix.EPOLLIN != 0,
			Writable: raw.Events&unix.EPOLLOUT != 0,
			Err:      raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			Token:    tok,
		})
	}
	p.mu.Unlock()

	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
