//go:build linux || darwin || freebsd || openbsd || netbsd

package socks5

import (
	"errors"

	"golang.org/x/sys/unix"
)

func replyForErrno(err error) (ReplyStatus, bool) {
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return ReplyConnectionRefused, true
	case errors.Is(err, unix.ENETUNREACH), errors.Is(err, unix.ENETDOWN):
		return ReplyNetworkUnreachable, true
	case errors.Is(err, unix.EHOSTUNREACH), errors.Is(err, unix.EHOSTDOWN):
		return ReplyHostUnreachable, true
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return ReplyConnectionNotAllowed, true
	default:
		return 0, false
	}
}
