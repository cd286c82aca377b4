//go:build linux

package notifyd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/notifydone/notifyd/internal/history"
	"github.com/notifydone/notifyd/internal/ipc"
	"github.com/notifydone/notifyd/internal/model"
)

// Backend is the read-only query surface the IPC server exposes. A
// non-root caller only sees its own tasks and history; uid is nil for
// root.
type Backend interface {
	Status() ipc.StatusResponse
	List(uid *uint32) []model.TrackedTask
	History(f history.Filter, uid *uint32) []model.Outcome
}

type Server struct {
	sockPath string
	backend  Backend

	ln *net.UnixListener
}

func NewServer(sockPath string, backend Backend) *Server {
	return &Server{sockPath: sockPath, backend: backend}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if strings.TrimSpace(s.sockPath) == "" {
		s.sockPath = ipc.DefaultSockPath
	}
	_ = os.Remove(s.sockPath)
	if err := os.MkdirAll(filepath.Dir(s.sockPath), 0o755); err != nil {
		return err
	}

	addr := &net.UnixAddr{Name: s.sockPath, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	_ = os.Chmod(s.sockPath, 0o666)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			continue
		}
		go s.handleConn(c)
	}
}

func (s *Server) handleConn(c *net.UnixConn) {
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(15 * time.Second))
	cred, err := ipc.GetPeerCred(c)
	if err != nil {
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("peercred: %v", err)))
		return
	}

	// Root sees everything; everyone else only their own uid.
	var scope *uint32
	if cred.UID != 0 {
		uid := uint32(cred.UID)
		scope = &uid
	}

	r := bufio.NewReaderSize(c, 1<<20)
	line, err := r.ReadBytes('\n')
	if err != nil {
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("read: %v", err)))
		return
	}
	typ, err := ipc.DecodeType(line)
	if err != nil {
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode type: %v", err)))
		return
	}

	switch typ {
	case ipc.MsgTypeStatus:
		resp := s.backend.Status()
		resp.Type = ipc.MsgTypeStatusOK
		_, _ = c.Write(ipc.MustLine(resp))
	case ipc.MsgTypeList:
		resp := ipc.ListResponse{Type: ipc.MsgTypeListOK, Tasks: s.backend.List(scope)}
		_, _ = c.Write(ipc.MustLine(resp))
	case ipc.MsgTypeHistory:
		var req ipc.HistoryRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode history: %v", err)))
			return
		}
		resp := ipc.HistoryResponse{Type: ipc.MsgTypeHistoryOK, Outcomes: s.backend.History(req.Filter, scope)}
		_, _ = c.Write(ipc.MustLine(resp))
	default:
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("unknown message type %q", typ)))
	}
}
