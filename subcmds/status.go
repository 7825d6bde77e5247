// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/orbtrader/api"
	"github.com/bvk/orbtrader/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.ClientFlags
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) Purpose() string {
	return "Prints the trading state of a running session"
}

func (c *Status) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	resp, err := cmdutil.Get[api.StatusResponse](ctx, &c.ClientFlags, api.StatusPath)
	if err != nil {
		return fmt.Errorf("could not fetch session status: %w", err)
	}

	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "PID: %d\n", resp.PID)
	fmt.Fprintf(stdout, "Uptime: %s\n", time.Since(resp.StartTime).Round(time.Second))
	fmt.Fprintf(stdout, "State: %s\n", resp.State)
	fmt.Fprintf(stdout, "Connected: %t (%d pending requests)\n", resp.Connected, resp.PendingRequests)
	if len(resp.ActiveGroup) != 0 {
		fmt.Fprintf(stdout, "Active group: %s\n", resp.ActiveGroup)
	}
	if len(resp.Groups) == 0 {
		return nil
	}

	fmt.Fprintln(stdout)
	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tContract\tState\tFill\tTP\tSL\n")
	for _, g := range resp.Groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", g.ID, g.Opening.Contract, g.State,
			g.Opening.FillPrice.StringFixed(2), g.TakeProfit.Price.StringFixed(2), g.StopLoss.Price.StringFixed(2))
	}
	return tw.Flush()
}
