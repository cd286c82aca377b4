//go:build linux

package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/notifydone/notifyd/internal/history"
	"github.com/notifydone/notifyd/internal/ipc"
	"github.com/notifydone/notifyd/internal/model"
)

func HistoryCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("history", args, historyUsage)

	var asJSON bool
	var sock string
	var comm string
	var kind string
	var uid int
	var limit int
	var dispatched string
	fs.BoolVar(&asJSON, "json", false, "emit JSON")
	fs.StringVar(&sock, "sock", ipc.SockPath(), "daemon socket path")
	fs.StringVar(&comm, "comm", "", "filter by command name (substring)")
	fs.StringVar(&kind, "kind", "", "filter by outcome kind (completed, orphan_exit, ...)")
	fs.IntVar(&uid, "uid", -1, "filter by uid (root only)")
	fs.IntVar(&limit, "limit", 0, "max entries to return (0 = all)")
	fs.StringVar(&dispatched, "dispatched", "", "filter by dispatch result (true/false)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := history.Filter{Comm: comm, Kind: model.OutcomeKind(kind), Limit: limit}
	if uid >= 0 {
		u := uint32(uid)
		f.UID = &u
	}
	switch dispatched {
	case "":
	case "true", "false":
		b := dispatched == "true"
		f.Dispatched = &b
	default:
		return fmt.Errorf("-dispatched must be true or false, got %q", dispatched)
	}

	client, err := ipc.Dial(ctx, sock)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.History(ctx, ipc.HistoryRequest{Filter: f})
	if err != nil {
		return fmt.Errorf("history request: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Outcomes)
	}

	if len(resp.Outcomes) == 0 {
		fmt.Println("no history entries")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tKIND\tUID\tCOMM\tDURATION\tEXIT\tNOTIFIED")
	for _, o := range resp.Outcomes {
		dur := "-"
		if o.Task.HasDuration {
			dur = o.Task.Duration.Round(time.Second).String()
		}
		notified := "no"
		if o.Dispatched {
			notified = "yes"
		} else if o.Error != model.ErrNone {
			notified = string(o.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			o.RecordedAt.Local().Format("15:04:05"),
			o.Kind, o.Task.UID, o.Task.Comm, dur, o.Task.ExitCode, notified)
	}
	return tw.Flush()
}

func historyUsage(w io.Writer, fs *flag.FlagSet) {
	prog := progName()
	fmt.Fprintf(w, "%s history: query recorded task outcomes, newest first\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s history [flags]\n\n", prog)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s history -comm 'make*' -limit 20\n", prog)
	fmt.Fprintf(w, "  %s history -kind completed -dispatched true -json\n\n", prog)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
