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

type Transitions struct {
	cmdutil.DBFlags

	last int
}

func (c *Transitions) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("transitions", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.IntVar(&c.last, "last", 0, "prints only the last N transitions when positive")
	return "transitions", fset, cli.CmdFunc(c.run)
}

func (c *Transitions) Purpose() string {
	return "Prints the trading state transitions saved in the journal"
}

func (c *Transitions) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	ts, err := journal.New(db).Transitions(ctx)
	if err != nil {
		return err
	}
	if c.last > 0 && len(ts) > c.last {
		ts = ts[len(ts)-c.last:]
	}

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "Seq\tTime\tFrom\tTo\tReason\n")
	for _, t := range ts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.Seq, t.Time.Format(time.DateTime), t.From, t.To, t.Reason)
	}
	return tw.Flush()
}
