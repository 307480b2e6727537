package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/patto/internal"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/syntax"
	"github.com/starford/patto/internal/tasklist"
	"github.com/starford/patto/internal/workspace"
	pkgconfig "github.com/starford/patto/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("root"); root != "" {
		cfg.Workspace.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
		internal.WithVersion(version),
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// parse prints the syntax tree of one file as JSON. Diagnostics go to
// stderr; the exit status stays zero because unparseable lines are data.
func parse(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("parse: FILE is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	tree := syntax.Parse(string(data))
	for _, d := range tree.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s:%d: %s\n", path, d.Row+1, d.Message)
	}
	enc := json.NewEncoder(os.Stdout)
	if !cmd.Bool("compact") {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(tree.Root)
}

func tasks(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.Workspace.Root
	if arg := cmd.Args().First(); arg != "" {
		dir = arg
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := storage.NewFS(dir, cfg.Workspace.Extension)
	if err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	repo := workspace.New(store, workspace.WithLogger(logger))
	defer repo.Close()
	if _, err := repo.Rescan(ctx); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}

	_, err = tasklist.Render(os.Stdout, repo.AggregateTasks(), tasklist.Options{Status: cmd.String("status")})
	return err
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
	rootFlag := &cli.StringFlag{
		Name:    "root",
		Aliases: []string{"r"},
		Usage:   "Workspace directory (overrides workspace.root)",
		Sources: cli.EnvVars("PATTO_ROOT"),
	}

	cmd := &cli.Command{
		Name:    "patto",
		Usage:   "Tab-indented note workspace with backlinks, tasks and live preview events",
		Version: version,
		Action:  serve,
		Flags:   []cli.Flag{configFlag, rootFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "parse",
				Usage:     "Print the syntax tree of a note as JSON",
				ArgsUsage: "FILE",
				Action:    parse,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "compact", Usage: "Single-line JSON"},
				},
			},
			{
				Name:      "tasks",
				Usage:     "List tasks in a workspace ordered by due date",
				ArgsUsage: "[DIR]",
				Action:    tasks,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "todo, doing or done"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
