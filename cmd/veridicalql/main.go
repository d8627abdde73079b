// veridicalql - an embeddable in-process query engine
// Main entry point for the interactive shell and batch queries

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/JayabrataBasu/veridicalql/internal/cli"
	"github.com/JayabrataBasu/veridicalql/internal/config"
	"github.com/JayabrataBasu/veridicalql/internal/fixture"
	"github.com/JayabrataBasu/veridicalql/internal/logger"
	"github.com/JayabrataBasu/veridicalql/internal/output"
	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/engine"
)

var (
	version     = "0.1.0"
	buildDate   = "dev"
	cfgFile     string
	fixturePath string
	database    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "veridicalql",
		Short: "veridicalql - an embeddable query engine",
		Long: `veridicalql runs JSON-encoded SELECT queries against in-memory tables
and registered remote sources.

Start the interactive shell:
  veridicalql --fixture school.yaml

Run a single query:
  veridicalql query --fixture school.yaml query.json`,
		SilenceUsage: true,
		RunE:         runShell,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&fixturePath, "fixture", "f", "", "fixture file to load (overrides data.fixture)")
	rootCmd.PersistentFlags().StringVarP(&database, "db", "d", "", "default database (overrides engine.default_database)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("veridicalql %s (built %s)\n", version, buildDate)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init [directory]",
		Short: "Write a sample config, fixture and query",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initWorkspace,
	})

	rootCmd.AddCommand(newQueryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is a configured engine with its fixture applied.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	engine  *engine.Engine
	fixture *fixture.Fixture
}

func open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if fixturePath != "" {
		cfg.Data.Fixture = fixturePath
	}
	if database != "" {
		cfg.Engine.DefaultDatabase = database
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	opts := cfg.EngineOptions()
	opts.Logger = log.Named("engine")
	s := &session{cfg: cfg, log: log, engine: engine.New(opts)}

	if cfg.Data.Fixture != "" {
		f, err := fixture.Load(cfg.Data.Fixture)
		if err != nil {
			s.close()
			return nil, err
		}
		s.fixture = f
		if err := f.Apply(ctx, s.engine); err != nil {
			s.close()
			return nil, fmt.Errorf("applying fixture %s: %w", cfg.Data.Fixture, err)
		}
		log.Info("Fixture loaded", "path", cfg.Data.Fixture, "databases", len(f.Databases), "remotes", len(f.Remotes))
	}
	return s, nil
}

func (s *session) close() {
	if err := s.engine.Close(); err != nil {
		s.log.Warn("Engine close failed", "error", err)
	}
	if s.fixture != nil {
		_ = s.fixture.Close()
	}
	_ = s.log.Sync()
}

func runShell(cmd *cobra.Command, args []string) error {
	s, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	s.log.Info("Starting veridicalql", "version", version, "default_database", s.cfg.Engine.DefaultDatabase)

	repl := cli.NewREPL(s.engine, s.cfg, s.log, os.Stdout, version)
	if err := repl.Run(); err != nil {
		s.log.Error("REPL error", "error", err)
		return err
	}
	return nil
}

func newQueryCmd() *cobra.Command {
	var (
		format string
		params []string
	)
	cmd := &cobra.Command{
		Use:   "query <file|->",
		Short: "Run one JSON query and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := readQuery(args[0])
			if err != nil {
				return err
			}
			node, err := ast.DecodeSelect(data)
			if err != nil {
				return err
			}
			values := make([]interface{}, len(params))
			for i, p := range params {
				values[i] = parseParam(p)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.engine.Query(ctx, node, values...)
			if err != nil {
				return err
			}
			return output.New(cmd.OutOrStdout(), f).Result(res)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table or json")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "value for the next unknown placeholder, as JSON or a bare string")
	return cmd
}

func readQuery(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseParam reads a placeholder value as JSON and falls back to the raw
// text, so both --param 7 and --param Ann work.
func parseParam(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func initWorkspace(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	fmt.Printf("Initializing veridicalql workspace in: %s\n", dir)

	files := []struct {
		name    string
		content string
	}{
		{"school.yaml", fixture.Sample},
		{"query.json", fixture.SampleQuery},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", path)
	}

	cfgPath := filepath.Join(dir, "veridicalql.yaml")
	if err := config.CreateDefaultConfig(cfgPath, filepath.Join(dir, "school.yaml"), "school"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create config file: %v\n", err)
	} else {
		fmt.Printf("Created config file: %s\n", cfgPath)
	}

	fmt.Printf("Run the sample with: veridicalql --config %s query %s\n", cfgPath, filepath.Join(dir, "query.json"))
	return nil
}
