package cli

import (
	"fmt"

	"github.com/mchmarny/claimq/pkg/data"
	urfave "github.com/urfave/cli/v2"
)

const (
	queryResultLimitDefault = 500
)

var (
	queryLimitFlag = &urfave.IntFlag{
		Name:  "limit",
		Usage: "Limits number of result returned",
		Value: queryResultLimitDefault,
	}

	runIDFlag = &urfave.StringFlag{
		Name:     "run",
		Usage:    "Run ID",
		Required: true,
	}

	queryCmd = &urfave.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "List data query operations",
		Subcommands: []*urfave.Command{
			{
				Name:    "runs",
				Usage:   "List scoring runs, newest first",
				Aliases: []string{"r"},
				Action:  cmdQueryRuns,
				Flags: []urfave.Flag{
					queryLimitFlag,
				},
			},
			{
				Name:    "queue",
				Usage:   "List the investigation queue of a run",
				Aliases: []string{"q"},
				Action:  cmdQueryQueue,
				Flags: []urfave.Flag{
					runIDFlag,
					queryLimitFlag,
				},
			},
		},
	}
)

func cmdQueryRuns(c *urfave.Context) error {
	cfg := getConfig(c)

	list, err := data.ListRuns(cfg.DB, c.Int(queryLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}

	return encode(c, list)
}

func cmdQueryQueue(c *urfave.Context) error {
	cfg := getConfig(c)
	id := c.String(runIDFlag.Name)

	if _, err := data.GetRun(cfg.DB, id); err != nil {
		return fmt.Errorf("failed to get run %s: %w", id, err)
	}

	list, err := data.GetQueue(cfg.DB, id, c.Int(queryLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to query queue of run %s: %w", id, err)
	}

	return encode(c, list)
}
