//go:build linux

package ipc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notifydone/notifyd/internal/history"
	"github.com/notifydone/notifyd/internal/model"
)

// JSONL protocol: 1 message per line.
// Every message must have a "type" field. All requests are read-only.

const (
	MsgTypeStatus    = "status"
	MsgTypeStatusOK  = "status_ok"
	MsgTypeList      = "list"
	MsgTypeListOK    = "list_ok"
	MsgTypeHistory   = "history"
	MsgTypeHistoryOK = "history_ok"
	MsgTypeError     = "error"
)

type Envelope struct {
	Type string `json:"type"`
}

type StatusRequest struct {
	Type string `json:"type"`
}

type TransportStats struct {
	KernelDrops    uint64 `json:"kernel_drops"`
	Decoded        uint64 `json:"decoded"`
	Malformed      uint64 `json:"malformed"`
	SchemaMismatch uint64 `json:"schema_mismatch"`
	UserDrops      uint64 `json:"user_drops"`
}

type StatusResponse struct {
	Type string `json:"type"`

	PID       int           `json:"pid"`
	Uptime    time.Duration `json:"uptime"`
	Attached  bool          `json:"attached"`
	LiveTasks int           `json:"live_tasks"`

	Transport TransportStats   `json:"transport"`
	Counters  history.Counters `json:"counters"`

	Threshold     time.Duration `json:"threshold"`
	SessionPolicy string        `json:"session_policy"`
}

type ListRequest struct {
	Type string `json:"type"`
}

type ListResponse struct {
	Type  string              `json:"type"`
	Tasks []model.TrackedTask `json:"tasks"`
}

type HistoryRequest struct {
	Type   string         `json:"type"`
	Filter history.Filter `json:"filter"`
}

type HistoryResponse struct {
	Type     string          `json:"type"`
	Outcomes []model.Outcome `json:"outcomes"`
}

type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func DecodeType(line []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", err
	}
	return strings.TrimSpace(env.Type), nil
}

func MustLine(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return append(b, '\n')
}

func NewErrorf(format string, args ...any) ErrorResponse {
	return ErrorResponse{Type: MsgTypeError, Message: fmt.Sprintf(format, args...)}
}
