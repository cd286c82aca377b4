//go:build linux

package ipc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCred identifies the process on the far end of a unix socket
// connection. The server uses UID to scope list and history replies: root
// sees every user's tasks, anyone else only their own.
type PeerCred struct {
	PID int
	UID int
	GID int
}

// GetPeerCred reads SO_PEERCRED off the connection. The kernel stamps the
// credentials at connect time, so a client cannot forge them.
func GetPeerCred(conn *net.UnixConn) (PeerCred, error) {
	var out PeerCred
	rc, err := conn.SyscallConn()
	if err != nil {
		return out, fmt.Errorf("peer credentials: %w", err)
	}
	var ucred *unix.Ucred
	var serr error
	if err := rc.Control(func(fd uintptr) {
		ucred, serr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return out, fmt.Errorf("peer credentials: %w", err)
	}
	if serr != nil {
		return out, fmt.Errorf("peer credentials: %w", serr)
	}
	if ucred == nil {
		return out, fmt.Errorf("peer credentials unavailable")
	}
	out.PID = int(ucred.Pid)
	out.UID = int(ucred.Uid)
	out.GID = int(ucred.Gid)
	return out, nil
}
