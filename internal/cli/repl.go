// Package cli provides the interactive veridicalql shell. Queries are JSON
// query trees terminated by ";"; backslash commands inspect the catalog.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/JayabrataBasu/veridicalql/internal/config"
	"github.com/JayabrataBasu/veridicalql/internal/logger"
	"github.com/JayabrataBasu/veridicalql/internal/output"
	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/engine"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

const (
	prompt         = "veridicalql> "
	continuePrompt = "         ... "
)

// REPL is the read-eval-print loop over an engine.
type REPL struct {
	engine  *engine.Engine
	config  *config.Config
	log     *logger.Logger
	out     io.Writer
	printer *output.Printer
	version string
}

// NewREPL creates a shell writing to out.
func NewREPL(e *engine.Engine, cfg *config.Config, log *logger.Logger, out io.Writer, version string) *REPL {
	return &REPL{
		engine:  e,
		config:  cfg,
		log:     log,
		out:     out,
		printer: output.New(out, output.FormatTable),
		version: version,
	}
}

// Run starts the interactive loop.
func (r *REPL) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    newCompleter(),
		Stdout:          r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()

	var buf strings.Builder
	for {
		if buf.Len() > 0 {
			rl.SetPrompt(continuePrompt)
		} else {
			rl.SetPrompt(prompt)
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if buf.Len() > 0 {
				buf.Reset()
				fmt.Fprintln(r.out, "^C")
			}
			continue
		} else if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out, "\nGoodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		done, res := r.feed(&buf, line)
		if res == commandExit {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		if done {
			buf.Reset()
		}
	}
}

// feed adds a line to the pending input in buf and executes it once it is
// complete: backslash commands immediately, queries at a trailing ";".
// done reports that buf was consumed.
func (r *REPL) feed(buf *strings.Builder, line string) (done bool, res commandResult) {
	line = strings.TrimSpace(line)
	if line == "" {
		return buf.Len() == 0, commandOK
	}
	if buf.Len() == 0 && strings.HasPrefix(line, `\`) {
		return true, r.execute(line)
	}
	if buf.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		return false, commandOK
	}
	return true, r.execute(strings.TrimSuffix(buf.String(), ";"))
}

// RunScript executes every statement read from in and reports how many
// failed. A final statement without ";" is executed too.
func (r *REPL) RunScript(in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	var buf strings.Builder
	failed := 0
	for _, line := range strings.Split(string(data), "\n") {
		done, res := r.feed(&buf, line)
		if res == commandError {
			failed++
		}
		if res == commandExit {
			buf.Reset()
			break
		}
		if done {
			buf.Reset()
		}
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		if r.execute(rest) == commandError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d statement(s) failed", failed)
	}
	return nil
}

type commandResult int

const (
	commandOK commandResult = iota
	commandExit
	commandError
)

// execute runs one complete input: a backslash command, a keyword or a
// JSON query tree.
func (r *REPL) execute(input string) commandResult {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, `\`) {
		return r.handleBackslashCommand(input)
	}
	switch strings.ToUpper(input) {
	case "":
		return commandOK
	case "EXIT", "QUIT":
		return commandExit
	case "HELP":
		r.printHelp()
		return commandOK
	}
	return r.runQuery(input)
}

func (r *REPL) runQuery(input string) commandResult {
	q, err := ast.DecodeSelect([]byte(input))
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return commandError
	}
	res, err := r.engine.Query(context.Background(), q)
	if err != nil {
		r.log.Debug("query failed", "error", err)
		fmt.Fprintf(r.out, "Error: %s\n", describe(err))
		return commandError
	}
	if err := r.printer.Result(res); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return commandError
	}
	return commandOK
}

// describe prefixes an error with its category.
func describe(err error) string {
	switch {
	case errors.Is(err, errs.ErrCanceled):
		return "query canceled: " + err.Error()
	case errors.Is(err, errs.ErrNoDatabaseSelected):
		return err.Error() + " (set engine.default_database or qualify the table)"
	default:
		return err.Error()
	}
}

func (r *REPL) handleBackslashCommand(input string) commandResult {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case `\q`, `\quit`, `\exit`:
		return commandExit
	case `\?`, `\help`:
		r.printHelp()
	case `\dt`, `\tables`:
		r.listTables()
	case `\d`:
		if len(parts) < 2 {
			fmt.Fprintln(r.out, `Usage: \d [database.]<table>`)
			return commandError
		}
		return r.describeTable(parts[1])
	case `\dr`, `\remotes`:
		r.listRemotes()
	case `\df`, `\functions`:
		r.listFunctions()
	case `\format`:
		if len(parts) < 2 {
			fmt.Fprintf(r.out, "Output format is %s\n", r.printer.Format())
			return commandOK
		}
		f, err := output.ParseFormat(parts[1])
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			return commandError
		}
		r.printer = output.New(r.out, f)
	case `\status`:
		r.printStatus()
	case `\metrics`:
		fmt.Fprint(r.out, r.engine.System().PrometheusMetrics())
	case `\config`:
		r.printConfig()
	case `\clear`:
		fmt.Fprint(r.out, "\033[H\033[2J")
	default:
		fmt.Fprintf(r.out, "Unknown command: %s\n", cmd)
		fmt.Fprintln(r.out, `Type \? for help`)
		return commandError
	}
	return commandOK
}

func (r *REPL) listTables() {
	ctx := context.Background()
	var rows [][]string
	for _, db := range r.engine.Schema().Databases() {
		for _, t := range db.Tables() {
			count := "?"
			if n, err := r.engine.RowCount(ctx, db.Key, t.Key); err == nil {
				count = fmt.Sprint(n)
			}
			rows = append(rows, []string{db.Name, t.Name, fmt.Sprint(len(t.Columns())), count})
		}
	}
	r.printer.Table([]string{"database", "table", "columns", "rows"}, rows)
}

func (r *REPL) describeTable(name string) commandResult {
	db := r.engine.DefaultDatabase()
	if i := strings.Index(name, "."); i >= 0 {
		db, name = name[:i], name[i+1:]
	}
	if db == "" {
		fmt.Fprintf(r.out, "Error: %s\n", describe(errs.NoDatabaseSelected(name)))
		return commandError
	}
	t, err := r.engine.Schema().GetTable(db, name)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return commandError
	}
	var rows [][]string
	for _, c := range t.Columns() {
		def := ""
		if c.Default != nil {
			def = c.Default.String()
		}
		rows = append(rows, []string{c.Name, c.Type.String(), fmt.Sprint(c.Nullable), def})
	}
	r.printer.Table([]string{"column", "type", "nullable", "default"}, rows)
	return commandOK
}

func (r *REPL) listRemotes() {
	var rows [][]string
	for _, name := range r.engine.Remotes().Names() {
		cols, err := r.engine.Remotes().Columns(name)
		if err != nil {
			continue
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name + " " + c.Type.String()
		}
		rows = append(rows, []string{name, strings.Join(names, ", ")})
	}
	r.printer.Table([]string{"source", "columns"}, rows)
}

func (r *REPL) listFunctions() {
	var rows [][]string
	for _, name := range r.engine.Functions().Names() {
		kind := "scalar"
		if f, err := r.engine.Functions().Resolve(name); err == nil && f.Aggregate() {
			kind = "aggregate"
		}
		rows = append(rows, []string{name, kind})
	}
	r.printer.Table([]string{"function", "kind"}, rows)
}

func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "veridicalql %s\nEnter JSON query trees terminated by ; or \\? for help.\n\n", r.version)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, `
Queries:
  {"classname": "Select", ...};    Run a JSON query tree

Backslash commands:
  \dt, \tables                     List tables
  \d [db.]<table>                  Describe a table
  \dr, \remotes                    List remote sources
  \df, \functions                  List functions
  \format [table|json]             Show or set the output format
  \status                          Show engine status
  \metrics                         Show query metrics (Prometheus format)
  \config                          Show configuration
  \clear                           Clear screen
  \?, \help                        Show this help
  \q, \quit                        Exit

Other:
  EXIT; or QUIT;                   Exit the shell
  HELP;                            Show this help`)
}

func (r *REPL) printStatus() {
	st := r.engine.Status()
	fmt.Fprintln(r.out, "\nveridicalql status")
	fmt.Fprintln(r.out, "==================")
	fmt.Fprintf(r.out, "Version:         %s\n", r.version)
	fmt.Fprintf(r.out, "Databases:       %d\n", st.Databases)
	fmt.Fprintf(r.out, "Tables:          %d\n", st.Tables)
	fmt.Fprintf(r.out, "Remote sources:  %d\n", len(st.Remotes))
	fmt.Fprintf(r.out, "Running tasks:   %d\n", st.Running)
	fmt.Fprintf(r.out, "Locks held:      %d (%d waiting)\n", st.ActiveLocks, st.WaitingLocks)
	fmt.Fprintf(r.out, "Schema version:  %d\n", st.SchemaVersion)
	fmt.Fprintln(r.out)
}

func (r *REPL) printConfig() {
	if r.config == nil {
		fmt.Fprintln(r.out, "No configuration loaded")
		return
	}
	c := r.config
	fmt.Fprintln(r.out, "\nCurrent configuration")
	fmt.Fprintln(r.out, "=====================")
	fmt.Fprintf(r.out, "Engine:\n")
	fmt.Fprintf(r.out, "  Default database: %s\n", c.Engine.DefaultDatabase)
	fmt.Fprintf(r.out, "  Query timeout:    %d ms\n", c.Engine.QueryTimeoutMS)
	fmt.Fprintf(r.out, "  System sources:   %v\n", c.Engine.SystemSources)
	fmt.Fprintf(r.out, "\nLocks:\n")
	fmt.Fprintf(r.out, "  Reader cap:       %d\n", c.Lock.ReaderCap)
	fmt.Fprintf(r.out, "  Writer cap:       %d\n", c.Lock.WriterCap)
	fmt.Fprintf(r.out, "  Timeout:          %d ms\n", c.Lock.TimeoutMS)
	fmt.Fprintf(r.out, "\nRemote sources:\n")
	fmt.Fprintf(r.out, "  Max retries:      %d\n", c.Remote.MaxRetries)
	fmt.Fprintf(r.out, "  Backoff:          %d ms\n", c.Remote.BackoffMS)
	fmt.Fprintf(r.out, "\nLogging:\n")
	fmt.Fprintf(r.out, "  Level:            %s\n", c.Log.Level)
	fmt.Fprintf(r.out, "  Format:           %s\n", c.Log.Format)
	fmt.Fprintf(r.out, "  Output:           %s\n", c.Log.Output)
	fmt.Fprintf(r.out, "\nData:\n")
	fmt.Fprintf(r.out, "  Fixture:          %s\n", c.Data.Fixture)
	fmt.Fprintln(r.out)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".veridicalql_history")
}

func newCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("HELP;"),
		readline.PcItem("EXIT;"),
		readline.PcItem(`\dt`),
		readline.PcItem(`\d`),
		readline.PcItem(`\dr`),
		readline.PcItem(`\df`),
		readline.PcItem(`\format`,
			readline.PcItem("table"),
			readline.PcItem("json"),
		),
		readline.PcItem(`\status`),
		readline.PcItem(`\metrics`),
		readline.PcItem(`\config`),
		readline.PcItem(`\clear`),
		readline.PcItem(`\help`),
		readline.PcItem(`\q`),
	)
}
