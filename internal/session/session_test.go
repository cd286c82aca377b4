package session

import "testing"

func TestPickAllReturnsActiveSessions(t *testing.T) {
	sessions := []Session{
		{ID: "2", Active: true, SinceUS: 100},
		{ID: "5", Active: false, SinceUS: 200},
		{ID: "7", Active: true, SinceUS: 300},
	}
	got := Pick(sessions, "all")
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "7" {
		t.Fatalf("picked=%v", got)
	}
}

func TestPickRecentReturnsNewestActive(t *testing.T) {
	sessions := []Session{
		{ID: "2", Active: true, SinceUS: 100},
		{ID: "7", Active: true, SinceUS: 300},
		{ID: "9", Active: false, SinceUS: 900},
	}
	got := Pick(sessions, "recent")
	if len(got) != 1 || got[0].ID != "7" {
		t.Fatalf("picked=%v", got)
	}
}

func TestPickFallsBackToInactive(t *testing.T) {
	sessions := []Session{
		{ID: "4", Active: false, SinceUS: 50},
	}
	got := Pick(sessions, "all")
	if len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("picked=%v", got)
	}
}

func TestPickEmpty(t *testing.T) {
	if got := Pick(nil, "all"); got != nil {
		t.Fatalf("picked=%v", got)
	}
}

func TestGraphicalTypes(t *testing.T) {
	if !TypeX11.Graphical() || !TypeWayland.Graphical() {
		t.Fatal("x11/wayland are graphical")
	}
	if TypeTTY.Graphical() || TypeUnknown.Graphical() {
		t.Fatal("tty/unknown are not graphical")
	}
}
