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

	"github.com/notifydone/notifyd/internal/ipc"
)

func ListCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("list", args, listUsage)

	var asJSON bool
	var sock string
	fs.BoolVar(&asJSON, "json", false, "emit JSON")
	fs.StringVar(&sock, "sock", ipc.SockPath(), "daemon socket path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := ipc.Dial(ctx, sock)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("list request: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Tasks)
	}

	if len(resp.Tasks) == 0 {
		fmt.Println("no tracked tasks")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tUID\tCOMM\tRUNNING")
	for _, t := range resp.Tasks {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n",
			t.PID, t.UID, t.Comm, now.Sub(t.Started).Round(time.Second))
	}
	return tw.Flush()
}

func listUsage(w io.Writer, fs *flag.FlagSet) {
	prog := progName()
	fmt.Fprintf(w, "%s list: show tasks currently being tracked\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s list [flags]\n\n", prog)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  Non-root callers only see their own tasks.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
