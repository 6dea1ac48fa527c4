package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abatilo/taskflow/internal/config"
	"github.com/abatilo/taskflow/internal/identity"
	"github.com/abatilo/taskflow/internal/orchestrator"
	"github.com/abatilo/taskflow/internal/output"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/storage/sqlite"
)

const dbFile = "taskflow.db"

//nolint:gochecknoglobals // CLI flags and formatter are package-level by design
var (
	jsonOutput bool
	configPath string
	dataDir    string
	formatter  output.Formatter
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Task tracking with dependencies, time and workflow automation",
		Long: "taskflow - tracks tasks with blocking dependencies, timers and budgets,\n" +
			"recurring schedules and workflow rules.",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if jsonOutput {
				formatter = output.NewJSONFormatter()
			} else {
				formatter = output.NewHumanFormatter()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data-dir>/taskflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.taskflow/<project>)")

	rootCmd.AddCommand(
		initCmd(),
		addCmd(),
		listCmd(),
		showCmd(),
		readyCmd(),
		startCmd(),
		doneCmd(),
		cancelCmd(),
		statusCmd(),
		blockersCmd(),
		depCmd(),
		undepCmd(),
		graphCmd(),
		pruneCmd(),
		rmCmd(),
		timerCmd(),
		logCmd(),
		budgetCmd(),
		progressCmd(),
		subtaskCmd(),
		ruleCmd(),
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what every command works against.
type app struct {
	cfg     *config.Config
	dir     string
	actor   string
	flow    *orchestrator.Orchestrator
	closeFn func() error
}

func (a *app) Close() {
	if a.closeFn != nil {
		_ = a.closeFn()
	}
}

func loadConfig() (*config.Config, string, error) {
	if dataDir != "" {
		// The flag wins over TASKFLOW_STORAGE_PATH and the config file.
		if err := os.Setenv("TASKFLOW_STORAGE_PATH", dataDir); err != nil {
			return nil, "", err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// getApp loads config, opens the configured store and wires the orchestrator.
func getApp() (*app, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var store storage.TaskStore
	var closeFn func() error
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if _, statErr := os.Stat(dir); statErr != nil {
			return nil, storage.NotInitializedError{Path: dir}
		}
		db, openErr := sqlite.Open(filepath.Join(dir, dbFile))
		if openErr != nil {
			return nil, openErr
		}
		store, closeFn = db, db.Close
	case config.DriverMemory:
		store = storage.NewMemory()
	default:
		fs := storage.NewFileStore(dir)
		if !fs.IsInitialized() {
			return nil, storage.NotInitializedError{Path: dir}
		}
		store = fs
	}

	logger := cfg.NewLogger(os.Stderr)
	directory := cfg.UserDirectory()
	flow := orchestrator.New(store, orchestrator.Options{
		Users:      directory,
		Cases:      directory,
		Logger:     logger,
		MaxRetries: cfg.Concurrency.MaxRetries,
	})

	return &app{
		cfg:     cfg,
		dir:     dir,
		actor:   identity.Actor(dir),
		flow:    flow,
		closeFn: closeFn,
	}, nil
}

// mustApp is getApp for commands that cannot continue without it.
func mustApp() *app {
	a, err := getApp()
	if err != nil {
		printError(err)
	}
	return a
}

func printOutput(s string) {
	os.Stdout.WriteString(s) //nolint:gosec // stdout write errors are unrecoverable
}

func printError(err error) {
	os.Stdout.WriteString(formatter.FormatError(err)) //nolint:gosec // stdout write errors are unrecoverable
	os.Exit(1)
}

// initCmd implements 'taskflow init'.
func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the taskflow data directory",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, dir, err := loadConfig()
			if err != nil {
				printError(err)
			}

			fs := storage.NewFileStore(dir)
			if err = fs.Init(force); err != nil {
				printError(err)
			}

			cfgFile := filepath.Join(dir, config.FileName)
			if _, statErr := os.Stat(cfgFile); os.IsNotExist(statErr) {
				if err = config.WriteDefault(cfgFile); err != nil {
					printError(err)
				}
			}

			if cfg.Storage.Driver == config.DriverSQLite {
				db, openErr := sqlite.Open(filepath.Join(dir, dbFile))
				if openErr != nil {
					printError(openErr)
				}
				_ = db.Close()
			}
			printOutput(formatter.FormatMessage(fmt.Sprintf("Initialized taskflow at %s (%s store)", dir, cfg.Storage.Driver)))
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reinitialize even if already exists")
	return cmd
}
