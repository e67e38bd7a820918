//go:build !linux

package forwarder

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller backs netpoller on non-Linux platforms with unix.Poll. The
// production build targets the epoll backend; this exists so the reactor
// loop in reactor.go compiles and behaves identically on every platform
// the module lists in its test matrix.
type pollPoller struct {
	mu            sync.Mutex
	tokens        map[int]*Token
	readInterest  map[int]bool
	writeInterest map[int]bool
}

func newPlatformPoller() (netpoller, error) {
	return &pollPoller{
		tokens:        make(map[int]*Token, 1024),
		readInterest:  make(map[int]bool),
		writeInterest: make(map[int]bool),
	}, nil
}

func (p *pollPoller) Add(fd int, tok *Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[fd] = tok
	p.readInterest[fd] = true
	return nil
}

func (p *pollPoller) EnableRead(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readInterest[fd] = true
	return nil
}

func (p *pollPoller) DisableRead(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.readInterest, fd)
	return nil
}

func (p *pollPoller) EnableWrite(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeInterest[fd] = true
	return nil
}

func (p *pollPoller) DisableWrite(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.writeInterest, fd)
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, fd)
	delete(p.readInterest, fd)
	delete(p.writeInterest, fd)
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]Event, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.tokens))
	toks := make(map[int]*Token, len(p.tokens))
	for fd, tok := range p.tokens {
		var ev int16
		if p.readInterest[fd] {
			ev |= unix.POLLIN
		}
		if p.writeInterest[fd] {
			ev |= unix.POLLOUT
		}
		if ev == 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
		toks[fd] = tok
	}
	p.mu.Unlock()

	if len(fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	n, err := unix.Poll(fds, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		tok := toks[int(pfd.Fd)]
		if tok == nil {
			continue
		}
		out = append(out, Event{
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Err:      pfd.Revents&(unix.POLLERR|unix.POLLHUP) != 0,
			Token:    tok,
		})
	}
	return out, nil
}

func (p *pollPoller) Close() error { return nil }
