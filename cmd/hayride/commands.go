package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hayride-dev/hayride-go/compose"
	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/hayride-dev/hayride-go/infrastructure/parser"
	"github.com/hayride-dev/hayride-go/infrastructure/store"
	"github.com/hayride-dev/hayride-go/serve"
)

// usageError is a malformed command line.
type usageError string

func (e usageError) Error() string { return string(e) }

// exitStatus carries a guest exit code out to the process.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func runCommand(ctx context.Context, rt *hostRuntime, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	call := fs.String("call", "", "call this export of the first component and print the result")
	input := fs.String("input", "", "payload passed to -call")
	listen := fs.String("listen", "", "listen address for a server or websocket component")
	if err := fs.Parse(args); err != nil {
		return usageError("run: " + err.Error())
	}
	refs := fs.Args()
	if len(refs) == 0 {
		return usageError("run: at least one component reference required")
	}
	root, err := store.ParseReference(refs[0])
	if err != nil {
		return err
	}
	rootID := root.Namespace + ":" + root.Name

	d, err := rt.launcher.Launch(ctx, refs)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.WithoutCancel(ctx)) }()

	if *call != "" {
		out, err := d.Call(ctx, rootID, *call, []byte(*input))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(out))
		return err
	}

	if d.Serves(rootID) {
		opts := []serve.Option{
			serve.WithAddress(rt.config.Serve.Address),
			serve.WithReadHeaderTimeout(rt.config.Serve.ReadHeaderTimeout),
			serve.WithShutdownTimeout(rt.config.Serve.ShutdownTimeout),
			serve.WithMaxBodySize(rt.config.Serve.MaxBodySize),
		}
		if *listen != "" {
			opts = append(opts, serve.WithAddress(*listen))
		}
		return d.Serve(ctx, rootID, opts...)
	}

	info, err := d.Wait(ctx, rootID)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted while serving.
			return nil
		}
		return err
	}
	_, _ = io.WriteString(stdout, info.Stdout)
	_, _ = io.WriteString(os.Stderr, info.Stderr)
	switch {
	case info.ExitCode != 0:
		return exitStatus(info.ExitCode)
	case info.State == entities.SiloFailed:
		return errors.New(info.Error)
	}
	return nil
}

func composeCommand(ctx context.Context, rt *hostRuntime, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return usageError("compose: expected one document path")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	refs, err := compose.ParseDocument(data)
	if err != nil {
		return err
	}
	plan, err := rt.launcher.Compose(ctx, refs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func installCommand(rt *hostRuntime, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	manifestPath := fs.String("manifest", "", "component.yaml describing the component")
	if err := fs.Parse(args); err != nil {
		return usageError("install: " + err.Error())
	}
	if fs.NArg() != 2 {
		return usageError("install: expected <namespace:name@version> <file.wasm>")
	}

	var manifest *entities.Manifest
	if *manifestPath != "" {
		raw, err := os.ReadFile(*manifestPath)
		if err != nil {
			return err
		}
		if manifest, err = parser.NewYamlManifestParser().Parse(raw); err != nil {
			return err
		}
	}
	binary, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	a, err := rt.store.Install(fs.Arg(0), binary, manifest)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "installed %s at %s\n", a.Ref(), a.Path)
	return err
}

func uninstallCommand(rt *hostRuntime, args []string) error {
	if len(args) != 1 {
		return usageError("uninstall: expected one component reference")
	}
	return rt.store.Uninstall(args[0])
}

func listCommand(rt *hostRuntime, stdout io.Writer) error {
	artifacts, err := rt.store.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tWORLD\tPATH")
	for _, a := range artifacts {
		world := "-"
		if a.Manifest != nil && a.Manifest.World != "" {
			world = a.Manifest.World
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Ref(), world, a.Path)
	}
	return w.Flush()
}
