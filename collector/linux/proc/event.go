//go:build linux

package proctrace

import (
	"bytes"
	"encoding/binary"
	"errors"

	common "github.com/notifydone/notifyd/collector/common"
)

// WireVersion is the schema version stamped into every record by the
// kernel side. Records carrying any other version are rejected, so a stale
// daemon never misparses events from newer instrumentation.
const WireVersion = 1

const (
	commLen    = 16
	recordSize = 48
)

// rawEvent mirrors struct lifecycle_event in _proc.bpf.c byte for byte.
// One fixed little-endian layout serves both exec and exit records; fields
// invalid for a kind are zero. Pid is the kernel task id, Tgid the
// thread-group (userspace process) id.
type rawEvent struct {
	Kind        uint8
	Version     uint8
	_           [2]byte
	Pid         uint32
	Tgid        uint32
	Ppid        uint32
	Uid         uint32
	ExitCode    int32
	TimestampNS uint64
	Comm        [commLen]byte
}

var (
	errShortRecord = errors.New("short lifecycle record")
	errBadVersion  = errors.New("lifecycle record version mismatch")
	errBadKind     = errors.New("unknown lifecycle record kind")
)

func decodeEvent(sample []byte) (common.Event, error) {
	if len(sample) < recordSize {
		return common.Event{}, errShortRecord
	}

	var raw rawEvent
	if err := binary.Read(bytes.NewReader(sample), binary.LittleEndian, &raw); err != nil {
		return common.Event{}, errShortRecord
	}
	if raw.Version != WireVersion {
		return common.Event{}, errBadVersion
	}
	if raw.Kind != uint8(common.KindExec) && raw.Kind != uint8(common.KindExit) {
		return common.Event{}, errBadKind
	}

	return common.Event{
		Kind:        common.Kind(raw.Kind),
		Pid:         raw.Pid,
		Tgid:        raw.Tgid,
		Ppid:        raw.Ppid,
		Uid:         raw.Uid,
		ExitCode:    raw.ExitCode,
		TimestampNS: raw.TimestampNS,
		Comm:        cString(raw.Comm[:]),
	}, nil
}

func cString(b []byte) string {
	for i := range b {
		if b[i] == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
