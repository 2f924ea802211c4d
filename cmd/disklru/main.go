// Command disklru is an interactive shell for exercising a disklru
// cache directory: put/get/delete keys, inspect size and entry count,
// and adjust the eviction budget, without writing a Go program.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/disklru"
	"github.com/calvinalkan/disklru/internal/cliconfig"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "disklru:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("disklru", flag.ContinueOnError)

	dir := fs.String("dir", "", "cache directory (overrides config)")
	appVersion := fs.Int("app-version", 0, "journal app_version (overrides config)")
	valueCount := fs.Int("value-count", 0, "entry value slot count (overrides config)")
	maxSize := fs.Int64("max-size", 0, "soft byte budget (overrides config)")
	configPath := fs.String("config", "", "explicit config file path")

	if err := fs.Parse(args); err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	setFields := map[string]bool{
		"dir":         fs.Changed("dir"),
		"app_version": fs.Changed("app-version"),
		"value_count": fs.Changed("value-count"),
		"max_size":    fs.Changed("max-size"),
	}

	override := cliconfig.Config{
		Dir:        *dir,
		AppVersion: *appVersion,
		ValueCount: *valueCount,
		MaxSize:    *maxSize,
	}

	cfg, sources, err := cliconfig.Load(workDir, *configPath, override, setFields)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if sources.Global != "" {
		fmt.Fprintln(os.Stderr, "loaded global config:", sources.Global)
	}

	if sources.Project != "" {
		fmt.Fprintln(os.Stderr, "loaded project config:", sources.Project)
	}

	c, err := disklru.Open(disklru.Options{
		Dir:        cfg.Dir,
		AppVersion: cfg.AppVersion,
		ValueCount: cfg.ValueCount,
		MaxSize:    cfg.MaxSize,
	})
	if err != nil {
		return fmt.Errorf("opening cache at %s: %w", cfg.Dir, err)
	}
	defer c.Close()

	return repl(c, cfg)
}

func repl(c *disklru.Cache, cfg cliconfig.Config) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(completer)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("disklru shell — dir=%s value_count=%d max_size=%d\n", cfg.Dir, cfg.ValueCount, cfg.MaxSize)
	fmt.Println(`type "help" for commands, "exit" to quit`)

	for {
		input, err := line.Prompt("disklru> ")
		if err == liner.ErrPromptAborted {
			break
		}

		if err != nil {
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			break
		}

		if err := dispatch(c, cfg, input); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}

	return nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".disklru_history"
	}

	return filepath.Join(home, ".disklru_history")
}

func completer(line string) []string {
	cmds := []string{"put", "get", "del", "stat", "setmax", "flush", "config", "help", "exit"}

	var out []string

	for _, c := range cmds {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}

func dispatch(c *disklru.Cache, cfg cliconfig.Config, input string) error {
	fields := strings.Fields(input)
	cmd := fields[0]
	rest := fields[1:]

	switch cmd {
	case "help":
		printHelp()
		return nil

	case "put":
		return cmdPut(c, cfg, rest)

	case "get":
		return cmdGet(c, cfg, rest)

	case "del":
		return cmdDel(c, rest)

	case "stat":
		cmdStat(c)
		return nil

	case "setmax":
		return cmdSetMax(c, rest)

	case "flush":
		return c.Flush()

	case "config":
		return cmdConfig(cfg)

	default:
		return fmt.Errorf("unknown command %q, try \"help\"", cmd)
	}
}

func printHelp() {
	fmt.Println(`commands:
  put <key> <v0> [v1 ...]   write and commit an entry
  get <key>                 print an entry's values
  del <key>                 remove an entry
  stat                      print entry count, size, max size
  setmax <bytes>            change the eviction budget
  flush                     flush the journal and drain eviction
  config                    print the effective config as JSON
  exit                      quit`)
}

func cmdPut(c *disklru.Cache, cfg cliconfig.Config, args []string) error {
	if len(args) < 1+cfg.ValueCount {
		return fmt.Errorf("put requires a key and %d values", cfg.ValueCount)
	}

	key := args[0]
	values := args[1 : 1+cfg.ValueCount]

	ed, err := c.Edit(key)
	if err != nil {
		return err
	}

	if ed == nil {
		return fmt.Errorf("key %q is already being edited", key)
	}

	for i, v := range values {
		if err := ed.Set(i, v); err != nil {
			_ = ed.Abort()
			return err
		}
	}

	return ed.Commit()
}

func cmdGet(c *disklru.Cache, cfg cliconfig.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("get requires exactly one key")
	}

	snap, err := c.Get(args[0])
	if err != nil {
		return err
	}

	if snap == nil {
		fmt.Println("(not found)")
		return nil
	}

	defer snap.Close()

	for i := 0; i < cfg.ValueCount; i++ {
		s, err := snap.GetString(i)
		if err != nil {
			return err
		}

		fmt.Printf("  [%d] (%d bytes) %s\n", i, snap.GetLength(i), s)
	}

	return nil
}

func cmdDel(c *disklru.Cache, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("del requires exactly one key")
	}

	ok, err := c.Remove(args[0])
	if err != nil {
		return err
	}

	if !ok {
		fmt.Println("(not found or being edited)")
	}

	return nil
}

func cmdStat(c *disklru.Cache) {
	s := c.Stats()
	fmt.Printf("entries=%d size=%d max_size=%d redundant_ops=%d\n", s.Entries, s.Size, s.MaxSize, s.RedundantOpCount)
}

func cmdConfig(cfg cliconfig.Config) error {
	out, err := cliconfig.Format(cfg)
	if err != nil {
		return err
	}

	fmt.Print(out)

	return nil
}

func cmdSetMax(c *disklru.Cache, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("setmax requires exactly one value")
	}

	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[0], err)
	}

	return c.SetMaxSize(n)
}
