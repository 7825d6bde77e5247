// Copyright (c) 2025 BVK Chaitanya

package journal

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/orbtrader/journal"
	"github.com/bvk/orbtrader/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Groups struct {
	cmdutil.DBFlags

	showFaults bool
}

func (c *Groups) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("groups", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.BoolVar(&c.showFaults, "faults", false, "when true, only groups with protocol faults are printed")
	return "groups", fset, cli.CmdFunc(c.run)
}

func (c *Groups) Purpose() string {
	return "Prints the bracket groups saved in the journal"
}

func (c *Groups) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	groups, err := journal.New(db).Groups(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tCreated\tContract\tState\tEntry\tFill\tTP\tSL\tReason\n")
	for _, g := range groups {
		if c.showFaults && len(g.Fault) == 0 {
			continue
		}
		reason := g.CloseReason
		if len(g.Fault) != 0 {
			reason = g.Fault
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			g.ID, g.CreateTime.Format(time.DateTime), g.Opening.Contract, g.State,
			g.Opening.Price.StringFixed(2), g.Opening.FillPrice.StringFixed(2),
			g.TakeProfit.Price.StringFixed(2), g.StopLoss.Price.StringFixed(2), reason)
	}
	return tw.Flush()
}
