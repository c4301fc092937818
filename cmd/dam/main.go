// Command dam is the CLI front-end for the snippet store: a thin
// argument parser over internal/store, grounded on the teacher's
// cmd/tinysql/main.go dispatch style (a flag.FlagSet-backed Config,
// subcommands switched on os.Args[1], a single exitIfErr helper).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jrcoleman/dam/internal/checkpoint"
	"github.com/jrcoleman/dam/internal/config"
	"github.com/jrcoleman/dam/internal/engine"
	"github.com/jrcoleman/dam/internal/store"
)

// Config holds the runtime configuration shared by every subcommand.
type Config struct {
	Root    string
	Verbose bool
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet("dam", flag.ContinueOnError)
	root := fs.String("root", ".", "store root directory")
	if err := fs.Parse(os.Args[2:]); err != nil {
		exitIfErr(err)
	}
	cfg := Config{Root: *root}

	appCfg, err := config.Load(filepath.Join(cfg.Root, "dam.yaml"))
	exitIfErr(err)
	cfg.Verbose = appCfg.Verbose

	st, err := store.Open(cfg.Root, appCfg.BufferPoolFrames)
	exitIfErr(err)
	defer st.Close()

	args := fs.Args()
	exitIfErr(dispatch(os.Args[1], args, st, appCfg))
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: dam <command> [--root DIR] [args]

Commands:
  put <name> <file>       store a snippet's contents under name
  get <name>               print a snippet's contents
  scan <prefix> <limit>    list snippets whose name starts with prefix
  tag <name> <tag>         add a tag to a snippet
  untag <name> <tag>       remove a tag from a snippet
  bytag <tag>               list snippets carrying tag
  stats                     print store statistics
  inspect <page-id>        dump a raw page's header
  checkpoint                 force an immediate checkpoint`)
}

func exitIfErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "dam: %v\n", err)
	os.Exit(1)
}

func dispatch(cmd string, args []string, st *store.Store, appCfg config.Config) error {
	switch cmd {
	case "put":
		return cmdPut(args, st)
	case "get":
		return cmdGet(args, st)
	case "scan":
		return cmdScan(args, st)
	case "tag":
		return cmdTag(args, st)
	case "untag":
		return cmdUntag(args, st)
	case "bytag":
		return cmdByTag(args, st)
	case "stats":
		return cmdStats(args, st)
	case "inspect":
		return cmdInspect(args, st)
	case "checkpoint":
		return cmdCheckpoint(args, st, appCfg)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdPut(args []string, st *store.Store) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: put <name> <file>")
	}
	name, path := args[0], args[1]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("put: read %s: %w", path, err)
	}
	existing, found, err := st.GetByName(name)
	if err != nil {
		return err
	}
	var snip store.Snippet
	if found {
		snip = *existing
		snip.Content = content
	} else {
		lang := strings.TrimPrefix(filepath.Ext(path), ".")
		snip = store.NewSnippet(name, lang, content, nil)
	}
	if err := st.Put(snip); err != nil {
		return err
	}
	fmt.Printf("stored %s (%s)\n", name, snip.ID)
	return nil
}

func cmdGet(args []string, st *store.Store) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <name>")
	}
	snip, found, err := st.GetByName(args[0])
	if err != nil {
		return err
	}
	if !found {
		return engine.NewError("dam.get", engine.KindNotFound, fmt.Errorf("snippet %q not found", args[0]))
	}
	os.Stdout.Write(snip.Content)
	return nil
}

func cmdScan(args []string, st *store.Store) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: scan <prefix> <limit>")
	}
	limit, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("scan: invalid limit %q: %w", args[1], err)
	}
	snips, err := st.ScanNames(args[0], limit)
	if err != nil {
		return err
	}
	for _, s := range snips {
		fmt.Printf("%s\t%s\t%d bytes\n", s.Name, s.Language, len(s.Content))
	}
	return nil
}

func cmdTag(args []string, st *store.Store) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: tag <name> <tag>")
	}
	snip, found, err := st.GetByName(args[0])
	if err != nil {
		return err
	}
	if !found {
		return engine.NewError("dam.tag", engine.KindNotFound, fmt.Errorf("snippet %q not found", args[0]))
	}
	return st.Tag(snip.ID, args[1])
}

func cmdUntag(args []string, st *store.Store) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: untag <name> <tag>")
	}
	snip, found, err := st.GetByName(args[0])
	if err != nil {
		return err
	}
	if !found {
		return engine.NewError("dam.untag", engine.KindNotFound, fmt.Errorf("snippet %q not found", args[0]))
	}
	return st.Untag(snip.ID, args[1])
}

func cmdByTag(args []string, st *store.Store) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bytag <tag>")
	}
	snips, err := st.ByTag(args[0])
	if err != nil {
		return err
	}
	for _, s := range snips {
		fmt.Println(s.Name)
	}
	return nil
}

func cmdStats(args []string, st *store.Store) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: stats")
	}
	eng := st.Engine()
	var totalBytes uint64
	snips, err := st.List()
	if err != nil {
		return err
	}
	for _, s := range snips {
		totalBytes += uint64(len(s.Content))
	}
	fmt.Printf("snippets:   %d\n", st.Count())
	fmt.Printf("content:    %s\n", humanize.Bytes(totalBytes))
	fmt.Printf("pages:      %d (%s)\n", eng.Disk().NumPages(), humanize.Bytes(uint64(eng.Disk().NumPages())*engine.PageSize))
	return nil
}

func cmdInspect(args []string, st *store.Store) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: inspect <page-id>")
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("inspect: invalid page id %q: %w", args[0], err)
	}
	buf := make([]byte, engine.PageSize)
	if err := st.Engine().Disk().ReadPage(engine.PageID(n), buf); err != nil {
		return err
	}
	p := engine.WrapPage(buf)
	fmt.Printf("page_id:        %d\n", p.ID())
	fmt.Printf("parent_page_id: %d\n", p.ParentPageID())
	fmt.Printf("kind:           %s\n", p.NodeKind())
	fmt.Printf("num_keys:       %d\n", p.NumKeys())
	fmt.Printf("page_lsn:       %d\n", p.PageLSN())
	fmt.Printf("checksum_ok:    %v\n", p.VerifyChecksum())
	return nil
}

func cmdCheckpoint(args []string, st *store.Store, appCfg config.Config) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: checkpoint")
	}
	sched, err := checkpoint.New(st, appCfg.CheckpointCron)
	if err != nil {
		return err
	}
	return sched.RunNow()
}
