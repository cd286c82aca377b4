package session

import (
	"fmt"
	"os/user"
	"strconv"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	login1Dest    = "org.freedesktop.login1"
	login1Path    = "/org/freedesktop/login1"
	login1Manager = "org.freedesktop.login1.Manager"
	login1Session = "org.freedesktop.login1.Session"
)

// Type is the logind session type.
type Type string

const (
	TypeX11     Type = "x11"
	TypeWayland Type = "wayland"
	TypeTTY     Type = "tty"
	TypeUnknown Type = "unknown"
)

func (t Type) Graphical() bool { return t == TypeX11 || t == TypeWayland }

// Session is one interactive logind session capable of receiving a
// desktop notification.
type Session struct {
	ID       string `json:"id"`
	UID      uint32 `json:"uid"`
	Username string `json:"username"`
	Seat     string `json:"seat,omitempty"`
	Type     Type   `json:"type"`
	Active   bool   `json:"active"`
	// SinceUS is the logind activation timestamp in microseconds, used to
	// pick the most recent session under the "recent" dispatch policy.
	SinceUS uint64 `json:"since_us,omitempty"`
}

// Resolver discovers graphical sessions for a uid over the logind D-Bus
// API. Results are cached per uid; the daemon clears the cache on its
// periodic sweep so logins and logouts are eventually observed.
type Resolver struct {
	log *zap.Logger

	mu        sync.Mutex
	conn      *dbus.Conn
	sessions  map[uint32][]Session
	usernames map[uint32]string
}

func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		log:       log,
		sessions:  make(map[uint32][]Session),
		usernames: make(map[uint32]string),
	}
}

// Resolve returns the graphical sessions belonging to uid, cached.
func (r *Resolver) Resolve(uid uint32) ([]Session, error) {
	r.mu.Lock()
	if cached, ok := r.sessions[uid]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	found, err := r.discover(uid)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[uid] = found
	r.mu.Unlock()
	return found, nil
}

// ClearCache drops cached sessions and usernames.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.sessions = make(map[uint32][]Session)
	r.usernames = make(map[uint32]string)
	r.mu.Unlock()
}

func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *Resolver) discover(uid uint32) ([]Session, error) {
	conn, err := r.systemBus()
	if err != nil {
		return nil, err
	}

	var listed []struct {
		ID   string
		UID  uint32
		User string
		Seat string
		Path dbus.ObjectPath
	}
	obj := conn.Object(login1Dest, login1Path)
	if err := obj.Call(login1Manager+".ListSessions", 0).Store(&listed); err != nil {
		return nil, fmt.Errorf("logind ListSessions: %w", err)
	}

	username := r.username(uid)
	var out []Session
	for _, ls := range listed {
		if ls.UID != uid {
			continue
		}
		s := Session{ID: ls.ID, UID: ls.UID, Username: username, Seat: ls.Seat, Type: TypeUnknown}
		if s.Username == "" {
			s.Username = ls.User
		}

		sessObj := conn.Object(login1Dest, ls.Path)
		if v, err := sessObj.GetProperty(login1Session + ".Type"); err == nil {
			var typ string
			if v.Store(&typ) == nil {
				s.Type = Type(typ)
			}
		}
		if !s.Type.Graphical() {
			continue
		}
		if v, err := sessObj.GetProperty(login1Session + ".Active"); err == nil {
			_ = v.Store(&s.Active)
		}
		if v, err := sessObj.GetProperty(login1Session + ".Timestamp"); err == nil {
			_ = v.Store(&s.SinceUS)
		}
		out = append(out, s)
	}

	r.log.Debug("resolved sessions", zap.Uint32("uid", uid), zap.Int("count", len(out)))
	return out, nil
}

func (r *Resolver) systemBus() (*dbus.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	r.conn = conn
	return conn, nil
}

func (r *Resolver) username(uid uint32) string {
	r.mu.Lock()
	if name, ok := r.usernames[uid]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return ""
	}
	r.mu.Lock()
	r.usernames[uid] = u.Username
	r.mu.Unlock()
	return u.Username
}

// Pick applies the configured dispatch policy: "all" broadcasts to every
// active session, "recent" picks the most recently activated one. Inactive
// sessions are only considered when no active session exists.
func Pick(sessions []Session, policy string) []Session {
	if len(sessions) == 0 {
		return nil
	}

	active := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Active {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		active = sessions
	}

	if policy != "recent" {
		return active
	}
	best := active[0]
	for _, s := range active[1:] {
		if s.SinceUS > best.SinceUS {
			best = s
		}
	}
	return []Session{best}
}
