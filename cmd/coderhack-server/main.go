package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "coderhack-server: %v\n", err)
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a .json, .yaml or .toml config file",
		EnvVars: []string{"CODERHACK_CONFIG"},
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:   "coderhack-server",
		Usage:  "coding leaderboard API",
		Flags:  []cli.Flag{configFlag()},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API (default)",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:   "config",
				Usage:  "print the effective configuration with secrets redacted",
				Flags:  []cli.Flag{configFlag()},
				Action: printConfig,
			},
		},
	}
}

// configPath prefers the innermost --config, so both "--config x serve" and
// "serve --config x" work.
func configPath(c *cli.Context) ConfigPath {
	for _, ctx := range c.Lineage() {
		if p := ctx.String("config"); p != "" {
			return ConfigPath(p)
		}
	}
	return ""
}

func serve(c *cli.Context) error {
	app, cleanup, err := BuildApp(configPath(c))
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer cleanup()

	cfg := app.Config
	app.Logger.Info("starting coderhack server",
		"environment", cfg.Environment,
		"address", cfg.Server.Address,
		"path_prefix", cfg.Server.PathPrefix,
		"storage_adapter", cfg.Storage.Adapter,
		"dispatch", cfg.Events.Dispatch,
		"metrics_enabled", cfg.Metrics.Enabled)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx); err != nil {
		return err
	}
	app.Logger.Info("server stopped")
	return nil
}

func printConfig(c *cli.Context) error {
	cfg, err := provideConfig(configPath(c))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, cfg.String())
	return err
}
