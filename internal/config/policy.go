package config

import (
	"path"
	"time"
)

// Policy is the merged system+user notify decision, resolved once per uid
// and then consulted as a pure function: the same completed task against
// the same policy always yields the same decision.
type Policy struct {
	Threshold    time.Duration
	ignore       []string
	alwaysNotify map[string]struct{}
	disabled     bool
}

// Effective merges per-user overrides over the system config. A nil user
// config yields the system policy unchanged.
func (c Config) Effective(user *UserConfig) Policy {
	p := Policy{
		Threshold:    c.Threshold,
		ignore:       append([]string(nil), c.Ignore...),
		alwaysNotify: map[string]struct{}{},
	}
	if user == nil {
		return p
	}
	if user.Threshold != nil {
		p.Threshold = *user.Threshold
	}
	p.ignore = append(p.ignore, user.Ignore...)
	for _, c := range user.AlwaysNotify {
		p.alwaysNotify[c] = struct{}{}
	}
	p.disabled = user.Disabled
	return p
}

// ShouldNotify decides whether a completed command of the given duration
// triggers a desktop notification.
func (p Policy) ShouldNotify(comm string, d time.Duration) bool {
	if p.disabled {
		return false
	}
	if _, ok := p.alwaysNotify[comm]; ok {
		return d >= p.Threshold
	}
	for _, pat := range p.ignore {
		if matchPattern(pat, comm) {
			return false
		}
	}
	return d >= p.Threshold
}

// matchPattern matches exactly, or as a glob when the pattern carries
// metacharacters.
func matchPattern(pat, comm string) bool {
	if pat == comm {
		return true
	}
	ok, err := path.Match(pat, comm)
	return err == nil && ok
}
