// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/orbtrader/config"
	"github.com/visvasity/cli"
	"gopkg.in/yaml.v3"
)

type CheckConfig struct {
	print bool
}

func (c *CheckConfig) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("check-config", flag.ContinueOnError)
	fset.BoolVar(&c.print, "print", false, "when true, prints the configuration with defaults filled in")
	return "check-config", fset, cli.CmdFunc(c.run)
}

func (c *CheckConfig) Purpose() string {
	return "Validates a configuration file"
}

func (c *CheckConfig) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (config file path) argument")
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if _, err := cfg.Credentials(); err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	if !c.print {
		fmt.Fprintf(stdout, "%s: ok\n", args[0])
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not encode the config: %w", err)
	}
	fmt.Fprintf(stdout, "%s", data)
	return nil
}
