package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/receipts-reconciler/internal/cli"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/logging"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg := loadConfig(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := logging.NewLogger(cfg.Observability.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, args[0], args[1:]); err != nil {
		if errors.Is(err, cli.ErrUsage) || errors.Is(err, flag.ErrHelp) {
			printUsage()
			os.Exit(2)
		}
		logger.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "scan", "reconcile", "recover", "serve":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		return cli.ErrUsage
	}

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	switch command {
	case "scan":
		flags, err := cli.ParseScanFlags(args, os.Stderr)
		if err != nil {
			return err
		}
		return cli.RunScan(ctx, app, flags, os.Stdout)
	case "reconcile":
		flags, err := cli.ParseReconcileFlags(args, os.Stderr)
		if err != nil {
			return err
		}
		return cli.RunReconcile(ctx, app, flags, os.Stdout)
	case "recover":
		if len(args) != 1 {
			return cli.ErrUsage
		}
		return cli.RunRecover(ctx, app, args[0], os.Stdout)
	default:
		flags, err := cli.ParseServeFlags(args, os.Stderr)
		if err != nil {
			return err
		}
		return cli.RunServe(ctx, app, flags)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.LoadOrEnv()
	}
	config.LoadDotEnv()
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", path, err)
		os.Exit(1)
	}
	return cfg
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Receipt reconciler")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  receipts [-config file] [-verbose] <command> [options]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  scan [-photo file] <payload>           Fetch and store the receipt behind a QR payload")
	fmt.Fprintln(os.Stderr, "  reconcile [-o report.xlsx] <file>      Match a statement (.json or .xlsx) against receipts")
	fmt.Fprintln(os.Stderr, "  recover <receipt-id>                   Restore a receipt's URL from its stored photo")
	fmt.Fprintln(os.Stderr, "  serve [-port n]                        Run the HTTP API")
}
