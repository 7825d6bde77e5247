// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/orbtrader/subcmds"
	"github.com/bvk/orbtrader/subcmds/db"
	"github.com/bvk/orbtrader/subcmds/journal"
	"github.com/visvasity/cli"

	_ "time/tzdata"
)

func main() {
	dbCmds := []cli.Command{
		new(db.Get),
		new(db.List),
	}

	journalCmds := []cli.Command{
		new(journal.Groups),
		new(journal.Transitions),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.CheckConfig),
		new(subcmds.IDGen),
		cli.CommandGroup("journal", "View saved bracket groups and state transitions", journalCmds...),
		cli.CommandGroup("db", "View database directly", dbCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
