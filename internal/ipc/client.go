//go:build linux

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const DefaultSockPath = "/run/notifyd.sock"

func SockPath() string {
	if v := strings.TrimSpace(os.Getenv("NOTIFYD_SOCK")); v != "" {
		return v
	}
	return DefaultSockPath
}

type Client struct {
	conn *net.UnixConn
	r    *bufio.Reader
}

func Dial(ctx context.Context, sockPath string) (*Client, error) {
	if strings.TrimSpace(sockPath) == "" {
		sockPath = SockPath()
	}
	d := net.Dialer{Timeout: 2 * time.Second}
	c, err := d.DialContext(ctx, "unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sockPath, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("unexpected conn type %T", c)
	}
	return &Client{conn: uc, r: bufio.NewReaderSize(uc, 1<<20)}, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, req any, resp any) error {
	if c.conn == nil {
		return fmt.Errorf("client closed")
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Now().Add(10 * time.Second))
	}

	if _, err := c.conn.Write(MustLine(req)); err != nil {
		return err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return err
	}
	typ, err := DecodeType(line)
	if err != nil {
		return err
	}
	if typ == MsgTypeError {
		var er ErrorResponse
		_ = json.Unmarshal(line, &er)
		return fmt.Errorf("notifyd error: %s", strings.TrimSpace(er.Message))
	}
	if err := json.Unmarshal(line, resp); err != nil {
		return err
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.roundTrip(ctx, StatusRequest{Type: MsgTypeStatus}, &resp)
	return resp, err
}

func (c *Client) List(ctx context.Context) (ListResponse, error) {
	var resp ListResponse
	err := c.roundTrip(ctx, ListRequest{Type: MsgTypeList}, &resp)
	return resp, err
}

func (c *Client) History(ctx context.Context, req HistoryRequest) (HistoryResponse, error) {
	req.Type = MsgTypeHistory
	var resp HistoryResponse
	err := c.roundTrip(ctx, req, &resp)
	return resp, err
}
