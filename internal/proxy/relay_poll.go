//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package proxy

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const canPoll = true

const readyEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

// pollRelay holds a reference to both descriptors for the whole relay so
// neither can be reused while it is being waited on.
func pollRelay(client, target net.Conn, crc, trc syscall.RawConn, reply io.Writer) (side, error) {
	var (
		ended    side
		relayErr error
	)
	cerr := crc.Control(func(cfd uintptr) {
		terr := trc.Control(func(tfd uintptr) {
			ended, relayErr = pollLoop(client, target, int32(cfd), int32(tfd), reply)
		})
		if terr != nil {
			relayErr = terr
		}
	})
	if cerr != nil {
		return 0, cerr
	}
	return ended, relayErr
}

func pollLoop(client, target net.Conn, cfd, tfd int32, reply io.Writer) (side, error) {
	buf := getChunk()
	defer putChunk(buf)

	fds := []unix.PollFd{
		{Fd: cfd, Events: unix.POLLIN},
		{Fd: tfd, Events: unix.POLLIN},
	}
	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, os.NewSyscallError("poll", err)
		}

		if fds[0].Revents&readyEvents != 0 {
			if done, err := pump(target, client, nil, *buf); done {
				return sideClient, err
			}
		}
		if fds[1].Revents&readyEvents != 0 {
			if done, err := pump(client, target, reply, *buf); done {
				return sideTarget, err
			}
		}
	}
}
