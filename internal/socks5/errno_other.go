//go:build !(linux || darwin || freebsd || openbsd || netbsd)

package socks5

import (
	"errors"
	"syscall"
)

func replyForErrno(err error) (ReplyStatus, bool) {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReplyConnectionRefused, true
	}
	return 0, false
}
