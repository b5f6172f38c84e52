package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/studio"
)

func (a *app) chat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	graphFile := fs.String("graph", "", "graph file (.json, .yaml)")
	workflow := fs.String("workflow", "", "saved workflow name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	w := studio.New(a.client, studio.WithLogger(a.logger))
	switch {
	case *graphFile != "" && *workflow != "":
		return fmt.Errorf("%w: -graph and -workflow are exclusive", errUsage)
	case *graphFile != "":
		snap, err := graph.LoadFile(*graphFile)
		if err != nil {
			return err
		}
		if err := w.Store().Load(snap); err != nil {
			return fmt.Errorf("load graph: %w", err)
		}
	case *workflow != "":
		if err := w.Open(ctx, *workflow); err != nil {
			return err
		}
	}

	for _, t := range w.Conversation().Turns() {
		printTurn(a.stdout, t)
	}
	scanner := bufio.NewScanner(a.stdin)
	for {
		fmt.Fprint(a.stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.stdout)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}
		res := w.Send(ctx, line)
		if res.Reply == "" {
			continue
		}
		printTurn(a.stdout, conversation.Assistant(res.Reply))
		for _, src := range res.Sources {
			fmt.Fprintf(a.stdout, "  source: %s\n", src)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printTurn(w io.Writer, t conversation.Turn) {
	fmt.Fprintf(w, "[%s] %s\n", t.Role, t.Content)
}

func (a *app) save(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	graphFile := fs.String("graph", "", "graph file (.json, .yaml)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 || *graphFile == "" {
		return fmt.Errorf("%w: save -graph FILE NAME", errUsage)
	}

	snap, err := graph.LoadFile(*graphFile)
	if err != nil {
		return err
	}
	store := graph.NewStore()
	if err := store.Load(snap); err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	w := studio.New(a.client, studio.WithStore(store), studio.WithLogger(a.logger))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = w.Run(runCtx) }()

	saved, err := w.RequestSave(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s (id %s)\n", saved.Message, saved.ID)
	return nil
}

func (a *app) load(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	out := fs.String("o", "", "write to file (.json, .yaml) instead of stdout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: load NAME", errUsage)
	}

	w := studio.New(a.client, studio.WithLogger(a.logger))
	snap, err := w.Persistence().Load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *out != "" {
		if err := graph.WriteFile(*out, snap); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "wrote %d nodes and %d edges to %s\n", len(snap.Nodes), len(snap.Edges), *out)
		return nil
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func (a *app) list(ctx context.Context) error {
	w := studio.New(a.client, studio.WithLogger(a.logger))
	list, err := w.Persistence().List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.stdout, "no saved workflows")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete NAME", errUsage)
	}
	if err := a.client.DeleteWorkflow(ctx, args[0]); err != nil {
		return fmt.Errorf("%s", fmerrors.UserMessage(err, "delete failed"))
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	collection := fs.String("collection", api.DefaultCollection, "knowledge collection")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: upload [-collection NAME] FILE", errUsage)
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	resp, err := a.client.Upload(ctx, *collection, filepath.Base(path), f)
	if err != nil {
		return fmt.Errorf("%s", fmerrors.UserMessage(err, "upload failed"))
	}
	fmt.Fprintf(a.stdout, "%s: %d chunks added to %s\n", resp.Message, resp.ChunksAdded, resp.Collection)
	return nil
}

func (a *app) collections(ctx context.Context) error {
	names, err := a.client.Collections(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(a.stdout, n)
	}
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	collection := fs.String("collection", "", "only this collection")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	records, err := a.client.UploadHistory(ctx, *collection)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.stdout, "no uploads")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCOLLECTION\tCHUNKS\tUPLOADED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Filename, r.Collection, r.ChunksCount, r.UploadDate.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (a *app) health(ctx context.Context) error {
	h, err := a.client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s: %s\n", h.Service, h.Version, h.Status)
	return nil
}
