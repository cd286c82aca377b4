package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/notifydone/notifyd/internal/model"
)

func TestTitle(t *testing.T) {
	got := Title(model.CompletedTask{Comm: "cargo"})
	if got != "Command completed: cargo" {
		t.Fatalf("title=%q", got)
	}
}

func TestBodySuccess(t *testing.T) {
	body := Body(model.CompletedTask{Comm: "make", Duration: 45 * time.Second, ExitCode: 0})
	if !strings.HasPrefix(body, "succeeded") {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(body, "Duration: 45s") {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(body, "Exit code: 0") {
		t.Fatalf("body=%q", body)
	}
}

func TestBodyFailure(t *testing.T) {
	body := Body(model.CompletedTask{Comm: "make", Duration: time.Minute, ExitCode: 2})
	if !strings.HasPrefix(body, "failed") {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(body, "Exit code: 2") {
		t.Fatalf("body=%q", body)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{125 * time.Second, "2m 5s"},
		{3723 * time.Second, "1h 2m 3s"},
		{0, "0s"},
	}
	for _, c := range cases {
		if got := formatDuration(c.d); got != c.want {
			t.Fatalf("formatDuration(%v)=%q, want %q", c.d, got, c.want)
		}
	}
}
