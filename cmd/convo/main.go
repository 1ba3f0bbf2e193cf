// Package main provides the convo CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	convo "github.com/everydev1618/goconvo"
	"github.com/everydev1618/goconvo/dsl"
	"github.com/everydev1618/goconvo/store"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runCmd(args)
	case "parse":
		parseCmd(args)
	case "schema":
		schemaCmd(args)
	case "history":
		historyCmd(args)
	case "serve":
		serveCmd(args)
	case "version":
		fmt.Printf("convo %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Convo - conversational scripting language

Usage:
  convo <command> [options]

Commands:
  run       Run the top-level blocks of a .convo file
  parse     Print the parsed messages of a .convo file
  schema    Print the tool schemas of a .convo file's functions
  history   List saved snapshots of a conversation
  serve     Start the HTTP API server
  version   Print version information
  help      Show this help message

Examples:
  convo run weather.convo --format json
  convo run weather.convo --conversation 6f1c...  # resume and save state
  convo parse weather.convo --format yaml
  convo schema weather.convo getWeather
  convo history --conversation 6f1c...
  convo serve --addr :3001

Run 'convo <command> --help' for more information on a command.`)
}

// loadConfig reads the config file, exiting on malformed files.
func loadConfig(path string) convo.Config {
	if path == "" {
		path = convo.DefaultConfigPath()
	}
	cfg, err := convo.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// parseSource parses file, printing parse errors with their location.
func parseSource(cfg convo.Config, file string) []*dsl.Message {
	res, err := dsl.NewParser(cfg.ParserOptions()...).ParseFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s at line %d: %s\n%s\n",
			file, res.Err.LineNumber, res.Err.Message, res.Err.Near)
		os.Exit(1)
	}
	return res.Messages
}

func emit(format string, v any) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", format)
		os.Exit(1)
	}
}

// runCmd executes the top-level blocks of a .convo file.
func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	format := fs.String("format", "text", "Output format: text, json or yaml")
	dbPath := fs.String("db", "", "Snapshot store path (.json for a JSON file, default from config)")
	conversation := fs.String("conversation", "", "Conversation to restore before running and save after")
	save := fs.Bool("save", false, "Save the shared state, starting a new conversation when none is given")
	timeout := fs.Duration("timeout", 5*time.Minute, "Maximum time to wait for pending values")
	configPath := fs.String("config", "", "Config file (default ~/.convo/config.yaml)")

	fs.Usage = func() {
		fmt.Println(`Usage: convo run <file.convo> [options]

Run the do, define and result blocks of a .convo file.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  convo run plan.convo
  convo run plan.convo --save --format json
  convo run plan.convo --conversation 6f1c... --db state.json`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no .convo file specified")
		fs.Usage()
		os.Exit(1)
	}

	file := fs.Arg(0)
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadConfig(*configPath)
	opts := []convo.EngineOption{
		convo.WithEngineLogger(convo.NewLogger(cfg.LogLevel, os.Stderr)),
		convo.WithEngineOutput(os.Stdout),
	}

	convID := *conversation
	if convID != "" || *save {
		st := openStore(cfg, *dbPath)
		defer st.Close()
		opts = append(opts, convo.WithStore(st))
		if convID == "" {
			convID = store.NewConversationID()
		}
	}
	engine := convo.NewEngine(cfg, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := engine.Run(ctx, convID, string(src))
	if err != nil {
		reportError(file, err)
		os.Exit(1)
	}

	if *format == "text" {
		fmt.Println(dsl.FormatValue(res.Result))
		if res.ResultBlock != "" {
			fmt.Print("\n" + res.ResultBlock)
		}
		if convID != "" {
			fmt.Fprintf(os.Stderr, "conversation: %s\n", convID)
		}
		return
	}
	emit(*format, res)
}

func openStore(cfg convo.Config, path string) store.Store {
	if path == "" {
		path = cfg.DBPath
	}
	st, err := store.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store %s: %v\n", path, err)
		os.Exit(1)
	}
	return st
}

func reportError(file string, err error) {
	var pe *dsl.ParseError
	if errors.As(err, &pe) {
		fmt.Fprintf(os.Stderr, "Error parsing %s at line %d: %s\n%s\n", file, pe.LineNumber, pe.Message, pe.Near)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// parseCmd prints the parsed message list.
func parseCmd(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	format := fs.String("format", "json", "Output format: json or yaml")
	configPath := fs.String("config", "", "Config file (default ~/.convo/config.yaml)")

	fs.Usage = func() {
		fmt.Println(`Usage: convo parse <file.convo> [options]

Parse a .convo file and print its messages without executing it.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no .convo file specified")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	emit(*format, parseSource(cfg, fs.Arg(0)))
}

// schemaCmd prints tool schemas for the file's callable functions.
func schemaCmd(args []string) {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	format := fs.String("format", "json", "Output format: json or yaml")
	configPath := fs.String("config", "", "Config file (default ~/.convo/config.yaml)")

	fs.Usage = func() {
		fmt.Println(`Usage: convo schema <file.convo> [function] [options]

Print the tool schemas of the functions a model may call. The file's
define blocks run first so declared types resolve.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no .convo file specified")
		fs.Usage()
		os.Exit(1)
	}

	file := fs.Arg(0)
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadConfig(*configPath)
	engine := convo.NewEngine(cfg, convo.WithEngineLogger(convo.NewLogger(cfg.LogLevel, os.Stderr)))
	tools, err := engine.Tools(string(src))
	if err != nil {
		reportError(file, err)
		os.Exit(1)
	}
	if fs.NArg() > 1 {
		name := fs.Arg(1)
		for _, tool := range tools {
			if tool.Name == name {
				emit(*format, tool)
				return
			}
		}
		fmt.Fprintf(os.Stderr, "Error: function '%s' not found\n", name)
		os.Exit(1)
	}
	emit(*format, tools)
}

// historyCmd lists saved snapshots of a conversation.
func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	conversation := fs.String("conversation", "", "Conversation ID")
	dbPath := fs.String("db", "", "Snapshot store path (default from config)")
	limit := fs.Int("limit", 20, "Maximum snapshots to list")
	verbose := fs.Bool("verbose", false, "Print each snapshot's state block")
	configPath := fs.String("config", "", "Config file (default ~/.convo/config.yaml)")

	fs.Usage = func() {
		fmt.Println(`Usage: convo history --conversation <id> [options]

List the saved snapshots of a conversation, newest first.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *conversation == "" {
		fmt.Fprintln(os.Stderr, "Error: --conversation is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	st := openStore(cfg, *dbPath)
	defer st.Close()

	snaps, err := st.ListSnapshots(*conversation, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(snaps) == 0 {
		fmt.Printf("No snapshots for %s\n", *conversation)
		return
	}
	for _, snap := range snaps {
		changed := "-"
		if len(snap.Setters) > 0 {
			changed = strings.Join(snap.Setters, ", ")
		}
		fmt.Printf("#%d  %s  changed: %s\n", snap.ID, snap.CreatedAt.Local().Format(time.DateTime), changed)
		if *verbose {
			fmt.Println(indent(snap.Source))
		}
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
