package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/claimq/pkg/config"
	"github.com/mchmarny/claimq/pkg/data"
	"github.com/mchmarny/claimq/pkg/logging"
	"github.com/mchmarny/claimq/pkg/metrics"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "claimq"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	dbFilePathFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "Path to the Sqlite database file (default: $HOME/.claimq/data.db)",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	configFlag = &urfave.StringFlag{
		Name:    "config",
		Usage:   "Path to the YAML config file (default: $HOME/.claimq/config.yaml)",
		EnvVars: []string{config.EnvPrefix + "CONFIG"},
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	DBPath  string
	Debug   bool
	Format  string
	DB      *sql.DB
	Config  *config.Config
	Metrics *metrics.Metrics
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Scores insurance claims for fraud risk and builds the investigation queue",
		Flags: []urfave.Flag{
			debugFlag,
			dbFilePathFlag,
			formatFlag,
			configFlag,
		},
		Commands: []*urfave.Command{
			scoreCmd,
			queryCmd,
			serverCmd,
			resetCmd,
		},
		Before: func(c *urfave.Context) error {
			debug := c.Bool(debugFlag.Name)
			if debug {
				logging.SetDefaultCLILogger("debug")
			}

			cfgPath := c.String(configFlag.Name)
			if cfgPath == "" {
				cfgPath = config.DefaultPath(getHomeDir())
			}
			conf, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if !debug {
				logging.SetDefaultCLILogger(conf.LogLevel)
			}

			format := formatJSON
			switch f := c.String(formatFlag.Name); f {
			case formatJSON:
			case formatYAML, "yml":
				format = formatYAML
			default:
				return fmt.Errorf("unsupported format: %s", f)
			}

			dbPath := c.String(dbFilePathFlag.Name)
			if dbPath == "" {
				dbPath = filepath.Join(getHomeDir(), data.DataFileName)
			}

			if err := data.Init(dbPath); err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			db, err := data.GetDB(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}

			c.App.Metadata[appConfigKey] = &appConfig{
				DBPath:  dbPath,
				Debug:   debug,
				Format:  format,
				DB:      db,
				Config:  conf,
				Metrics: metrics.New(),
			}
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func getHomeDir() string {
	dir, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	return dir
}

func encode(c *urfave.Context, v any) error {
	return encodeTo(c.App.Writer, getConfig(c).Format, v)
}

func encodeTo(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
