package cli

import (
	"errors"
	"flag"
	"io"
)

// ErrUsage is returned when a command is called with missing arguments.
var ErrUsage = errors.New("invalid usage")

// ScanFlags are the flags of the scan command.
type ScanFlags struct {
	Payload string
	Photo   string
}

// ParseScanFlags parses `scan [-photo file] <payload>`.
func ParseScanFlags(args []string, output io.Writer) (*ScanFlags, error) {
	flags := &ScanFlags{}
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.Photo, "photo", "", "Photo of the receipt to store with it")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, ErrUsage
	}
	flags.Payload = fs.Arg(0)
	return flags, nil
}

// ReconcileFlags are the flags of the reconcile command.
type ReconcileFlags struct {
	Statement string
	Output    string
}

// ParseReconcileFlags parses `reconcile [-o report.xlsx] <statement.json|.xlsx>`.
func ParseReconcileFlags(args []string, output io.Writer) (*ReconcileFlags, error) {
	flags := &ReconcileFlags{}
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.Output, "o", "", "Write the match report to this XLSX file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, ErrUsage
	}
	flags.Statement = fs.Arg(0)
	return flags, nil
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port int
}

// ParseServeFlags parses command line flags for the serve command. A zero
// port keeps the configured one.
func ParseServeFlags(args []string, output io.Writer) (*ServeFlags, error) {
	flags := &ServeFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}
