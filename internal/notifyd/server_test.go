//go:build linux

package notifyd

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/notifydone/notifyd/internal/history"
	"github.com/notifydone/notifyd/internal/ipc"
	"github.com/notifydone/notifyd/internal/model"
)

type stubBackend struct {
	lastScope *uint32
	lastFilt  history.Filter
}

func (b *stubBackend) Status() ipc.StatusResponse {
	return ipc.StatusResponse{PID: 42, Attached: true, LiveTasks: 3}
}

func (b *stubBackend) List(uid *uint32) []model.TrackedTask {
	b.lastScope = uid
	return []model.TrackedTask{{TGID: 7, Comm: "build", UID: 1000}}
}

func (b *stubBackend) History(f history.Filter, uid *uint32) []model.Outcome {
	b.lastScope = uid
	b.lastFilt = f
	return []model.Outcome{{Kind: model.KindCompleted, Task: model.CompletedTask{Comm: "make"}}}
}

func startTestServer(t *testing.T) (*stubBackend, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "notifyd.sock")
	backend := &stubBackend{}
	srv := NewServer(sock, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sock); err == nil {
			return backend, sock
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket never appeared")
	return nil, ""
}

func dialTest(t *testing.T, sock string) *ipc.Client {
	t.Helper()
	c, err := ipc.Dial(context.Background(), sock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServerStatusRoundTrip(t *testing.T) {
	_, sock := startTestServer(t)
	c := dialTest(t, sock)

	resp, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.PID != 42 || !resp.Attached || resp.LiveTasks != 3 {
		t.Fatalf("status=%+v", resp)
	}
}

func TestServerListScopesNonRoot(t *testing.T) {
	backend, sock := startTestServer(t)
	c := dialTest(t, sock)

	resp, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Comm != "build" {
		t.Fatalf("tasks=%+v", resp.Tasks)
	}

	uid := os.Getuid()
	if uid == 0 {
		if backend.lastScope != nil {
			t.Fatalf("root caller must see everything, scope=%v", *backend.lastScope)
		}
	} else {
		if backend.lastScope == nil || *backend.lastScope != uint32(uid) {
			t.Fatalf("caller uid %d not enforced, scope=%v", uid, backend.lastScope)
		}
	}
}

func TestServerHistoryCarriesFilter(t *testing.T) {
	backend, sock := startTestServer(t)
	c := dialTest(t, sock)

	resp, err := c.History(context.Background(), ipc.HistoryRequest{
		Filter: history.Filter{Comm: "make", Limit: 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].Task.Comm != "make" {
		t.Fatalf("outcomes=%+v", resp.Outcomes)
	}
	if backend.lastFilt.Comm != "make" || backend.lastFilt.Limit != 5 {
		t.Fatalf("filter=%+v", backend.lastFilt)
	}
}

func TestServerRejectsUnknownType(t *testing.T) {
	_, sock := startTestServer(t)

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte(`{"type":"bogus"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	typ, err := ipc.DecodeType(line)
	if err != nil {
		t.Fatal(err)
	}
	if typ != ipc.MsgTypeError {
		t.Fatalf("type=%q, want error", typ)
	}
}
