//go:build linux

package pollio

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

func init() {
	registerBackend("epoll", func() bool { return true }, newEpollBackend)
}

// epollBackend is the Linux poller: a level-triggered epoll instance
// plus an eventfd used to interrupt a blocked wait from other
// goroutines.
type epollBackend struct {
	epfd       int
	wakeFd     int
	events     []unix.EpollEvent
	registered map[int]bool
}

func newEpollBackend() (Backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	b := &epollBackend{
		epfd:       epfd,
		wakeFd:     wakeFd,
		events:     make([]unix.EpollEvent, 64),
		registered: make(map[int]bool),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return b, nil
}

func (b *epollBackend) Poll(timeout time.Duration) (map[int]Events, error) {
	ms := 0
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}
	n, err := unix.EpollWait(b.epfd, b.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make(map[int]Events, n)
	for i := 0; i < n; i++ {
		ev := b.events[i]
		fd := int(ev.Fd)
		if fd == b.wakeFd {
			b.drainWake()
			continue
		}
		var m Events
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0 {
			m |= EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			m |= EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			m |= EventErr
		}
		ready[fd] |= m
	}
	return ready, nil
}

func (b *epollBackend) drainWake() {
	var buf [8]byte
	unix.Read(b.wakeFd, buf[:])
}

func (b *epollBackend) OnWaitChange(fd int, mask Events) error {
	if mask == 0 {
		if !b.registered[fd] {
			return nil
		}
		delete(b.registered, fd)
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	var events uint32
	if mask&EventRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if mask&EventWrite != 0 {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if b.registered[fd] {
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	b.registered[fd] = true
	return nil
}

// Wake bumps the eventfd; safe from any goroutine.
func (b *epollBackend) Wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	unix.Write(b.wakeFd, buf[:])
}

func (b *epollBackend) Close() error {
	unix.Close(b.wakeFd)
	return unix.Close(b.epfd)
}
