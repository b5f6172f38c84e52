// Command flowmind is a terminal client for the flowmind service.
//
// Usage:
//
//	flowmind [-config file] [-env file] [-api url] <command> [flags] [args]
//
// Commands:
//
//	chat        chat with a graph file (-graph) or a saved workflow (-workflow)
//	save NAME   save a graph file (-graph) under NAME
//	load NAME   print a saved workflow, or write it to -o
//	list        list saved workflows
//	delete NAME delete a saved workflow
//	upload FILE ingest a .txt or .md document into -collection
//	collections list knowledge collections
//	history     list ingested documents, optionally for one -collection
//	health      check the service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/randalmurphal/flowmind/pkg/flowmind/config"
	"github.com/randalmurphal/flowmind/pkg/flowmind/transport"
)

// errUsage marks errors that should be followed by the usage text.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	client *transport.Client
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flowmind", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "YAML or JSON config file")
	envFile := fs.String("env", ".env", "dotenv file")
	apiURL := fs.String("api", "", "service base URL (overrides config)")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	settings, err := config.Load(config.LoadOptions{File: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintln(stderr, "flowmind:", err)
		return 1
	}
	if *apiURL != "" {
		settings.APIBaseURL = *apiURL
	}
	logger := settings.Logger()

	a := &app{
		client: transport.New(settings.APIBaseURL,
			transport.WithTimeout(settings.RequestTimeout),
			transport.WithLogger(logger)),
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var cmdErr error
	switch cmd {
	case "chat":
		cmdErr = a.chat(ctx, rest)
	case "save":
		cmdErr = a.save(ctx, rest)
	case "load":
		cmdErr = a.load(ctx, rest)
	case "list":
		cmdErr = a.list(ctx)
	case "delete":
		cmdErr = a.remove(ctx, rest)
	case "upload":
		cmdErr = a.upload(ctx, rest)
	case "history":
		cmdErr = a.history(ctx, rest)
	case "collections":
		cmdErr = a.collections(ctx)
	case "health":
		cmdErr = a.health(ctx)
	default:
		cmdErr = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if cmdErr != nil {
		fmt.Fprintln(stderr, "flowmind:", cmdErr)
		if errors.Is(cmdErr, errUsage) {
			fs.Usage()
			return 2
		}
		return 1
	}
	return 0
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: flowmind [flags] <chat|save|load|list|delete|upload|collections|history|health> [args]")
	fs.PrintDefaults()
}
