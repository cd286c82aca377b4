package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/notifydone/notifyd/internal/session"
)

const appName = "notifyd"

// Sender delivers one notification payload to one session. It is an
// opaque fallible operation; the dispatcher owns the retry policy.
type Sender interface {
	Send(ctx context.Context, s session.Session, title, body string) error
}

// DesktopSender talks to org.freedesktop.Notifications on the target
// user's session bus, falling back to notify-send run inside the user's
// systemd scope when the direct bus connection is refused (the user bus
// normally only admits the owning uid).
type DesktopSender struct{}

func (DesktopSender) Send(ctx context.Context, s session.Session, title, body string) error {
	busErr := sendViaBus(s, title, body)
	if busErr == nil {
		return nil
	}
	if err := sendViaNotifySend(ctx, s, title, body); err != nil {
		return fmt.Errorf("notify session %s: bus: %v; notify-send: %w", s.ID, busErr, err)
	}
	return nil
}

func sendViaBus(s session.Session, title, body string) error {
	addr := fmt.Sprintf("unix:path=/run/user/%d/bus", s.UID)
	conn, err := dbus.Connect(addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		appName,                   // app_name
		uint32(0),                 // replaces_id
		"",                        // app_icon
		title,                     // summary
		body,                      // body
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		int32(-1),                 // expire_timeout
	)
	if call.Err != nil {
		return fmt.Errorf("Notify: %w", call.Err)
	}
	return nil
}

// sendViaNotifySend runs notify-send inside the user's systemd scope so
// it inherits the session environment the daemon cannot see.
func sendViaNotifySend(ctx context.Context, s session.Session, title, body string) error {
	if s.Username == "" {
		return fmt.Errorf("no username for uid %d", s.UID)
	}

	env := []string{
		fmt.Sprintf("XDG_RUNTIME_DIR=/run/user/%d", s.UID),
		fmt.Sprintf("DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/%d/bus", s.UID),
	}
	if s.Type == session.TypeWayland {
		env = append(env, fmt.Sprintf("WAYLAND_DISPLAY=/run/user/%d/wayland-0", s.UID))
	}
	if s.Type == session.TypeX11 {
		env = append(env, "DISPLAY=:0")
	}

	args := []string{
		"--user",
		"--machine", fmt.Sprintf("%s@.host", s.Username),
		"--quiet", "--pipe", "--wait", "--collect",
	}
	for _, e := range env {
		args = append(args, "--setenv", e)
	}
	args = append(args, "notify-send", "--app-name="+appName, title, body)

	cmd := exec.CommandContext(ctx, "systemd-run", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemd-run notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
