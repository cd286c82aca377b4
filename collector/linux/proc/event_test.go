//go:build linux

package proctrace

import (
	"encoding/binary"
	"testing"

	common "github.com/notifydone/notifyd/collector/common"
)

// buildRecord pins the wire layout byte by byte so a drifting struct
// definition fails loudly here rather than silently misparsing kernel data.
func buildRecord(kind, version uint8, pid, tgid, ppid, uid uint32, exitCode int32, ts uint64, comm string) []byte {
	b := make([]byte, recordSize)
	b[0] = kind
	b[1] = version
	binary.LittleEndian.PutUint32(b[4:], pid)
	binary.LittleEndian.PutUint32(b[8:], tgid)
	binary.LittleEndian.PutUint32(b[12:], ppid)
	binary.LittleEndian.PutUint32(b[16:], uid)
	binary.LittleEndian.PutUint32(b[20:], uint32(exitCode))
	binary.LittleEndian.PutUint64(b[24:], ts)
	copy(b[32:48], comm)
	return b
}

func TestDecodeExecEvent(t *testing.T) {
	rec := buildRecord(uint8(common.KindExec), WireVersion, 100, 100, 7, 1000, 0, 123456789, "cargo")

	ev, err := decodeEvent(rec)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Kind != common.KindExec {
		t.Fatalf("kind=%d", ev.Kind)
	}
	if ev.Pid != 100 || ev.Tgid != 100 || ev.Ppid != 7 || ev.Uid != 1000 {
		t.Fatalf("ids=%d/%d/%d/%d", ev.Pid, ev.Tgid, ev.Ppid, ev.Uid)
	}
	if ev.TimestampNS != 123456789 {
		t.Fatalf("ts=%d", ev.TimestampNS)
	}
	if ev.Comm != "cargo" {
		t.Fatalf("comm=%q", ev.Comm)
	}
}

func TestDecodeExitEventNegativeCode(t *testing.T) {
	rec := buildRecord(uint8(common.KindExit), WireVersion, 200, 200, 0, 1000, -1, 42, "make")

	ev, err := decodeEvent(rec)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Kind != common.KindExit {
		t.Fatalf("kind=%d", ev.Kind)
	}
	if ev.ExitCode != -1 {
		t.Fatalf("exit_code=%d", ev.ExitCode)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	rec := buildRecord(uint8(common.KindExec), WireVersion+1, 1, 1, 0, 1000, 0, 1, "x")
	if _, err := decodeEvent(rec); err != errBadVersion {
		t.Fatalf("err=%v, want errBadVersion", err)
	}
}

func TestDecodeRejectsShortRecord(t *testing.T) {
	if _, err := decodeEvent(make([]byte, recordSize-1)); err != errShortRecord {
		t.Fatalf("err=%v, want errShortRecord", err)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	rec := buildRecord(9, WireVersion, 1, 1, 0, 1000, 0, 1, "x")
	if _, err := decodeEvent(rec); err != errBadKind {
		t.Fatalf("err=%v, want errBadKind", err)
	}
}

func TestCommWithoutNULIsFullWidth(t *testing.T) {
	rec := buildRecord(uint8(common.KindExec), WireVersion, 1, 1, 0, 1000, 0, 1, "abcdefghijklmnop")
	ev, err := decodeEvent(rec)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Comm != "abcdefghijklmnop" {
		t.Fatalf("comm=%q", ev.Comm)
	}
}
