package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anigiffy/internal/logging"
	"anigiffy/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and clean browser sessions on disk",
	}
	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsStatsCommand(ctx))
	sessionsCmd.AddCommand(newSessionsCleanCommand(ctx))
	return sessionsCmd
}

func openSessionStore(cmd *cobra.Command, ctx *commandContext) (*session.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return session.New(cfg, ctx.cliLogger(cmd.ErrOrStderr())), nil
}

type sessionRow struct {
	Info  session.Info  `json:"session"`
	Stats session.Stats `json:"stats"`
}

func loadSessionRows(cmd *cobra.Command, store *session.Store) ([]sessionRow, error) {
	infos, err := store.List()
	if err != nil {
		return nil, err
	}
	stats, err := store.AllStats(cmd.Context())
	if err != nil {
		return nil, err
	}
	rows := make([]sessionRow, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, sessionRow{Info: info, Stats: stats[info.ID]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Info.ModTime.After(rows[j].Info.ModTime) })
	return rows, nil
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore(cmd, ctx)
			if err != nil {
				return err
			}
			rows, err := loadSessionRows(cmd, store)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, rows)
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No sessions")
				return nil
			}
			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				state := "active"
				if store.Expired(row.Info.ModTime) {
					state = "expired"
				}
				table = append(table, []string{
					logging.ShortSessionID(row.Info.ID),
					humanize.Time(row.Info.ModTime),
					state,
					strconv.Itoa(row.Stats.ImageCount),
					strconv.Itoa(row.Stats.ProjectCount),
					strconv.Itoa(row.Stats.OutputCount),
					humanize.IBytes(uint64(row.Stats.TotalSize)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "Last active", "State", "Images", "Projects", "GIFs", "Size"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print sessions as JSON")
	return cmd
}

type storeTotals struct {
	Sessions int   `json:"sessions"`
	Expired  int   `json:"expired"`
	Images   int   `json:"images"`
	Projects int   `json:"projects"`
	Outputs  int   `json:"outputs"`
	Bytes    int64 `json:"bytes"`
}

func newSessionsStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize storage used by all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore(cmd, ctx)
			if err != nil {
				return err
			}
			rows, err := loadSessionRows(cmd, store)
			if err != nil {
				return err
			}
			var totals storeTotals
			for _, row := range rows {
				totals.Sessions++
				if store.Expired(row.Info.ModTime) {
					totals.Expired++
				}
				totals.Images += row.Stats.ImageCount
				totals.Projects += row.Stats.ProjectCount
				totals.Outputs += row.Stats.OutputCount
				totals.Bytes += row.Stats.TotalSize
			}
			if jsonOut {
				return writeJSON(cmd, totals)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Sessions", strconv.Itoa(totals.Sessions)},
					{"Expired", strconv.Itoa(totals.Expired)},
					{"Images", strconv.Itoa(totals.Images)},
					{"Projects", strconv.Itoa(totals.Projects)},
					{"GIFs", strconv.Itoa(totals.Outputs)},
					{"Storage", humanize.IBytes(uint64(totals.Bytes))},
				},
				[]columnAlignment{alignLeft, alignRight},
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print totals as JSON")
	return cmd
}

func newSessionsCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove expired sessions and stale previews",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore(cmd, ctx)
			if err != nil {
				return err
			}
			started := time.Now()
			expired := store.CleanExpired(cmd.Context())
			orphans := store.CleanOrphans(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d expired sessions and %d stale previews in %s\n",
				len(expired.Removed), len(orphans.Removed), time.Since(started).Round(time.Millisecond))
			failures := append(expired.Errors, orphans.Errors...)
			for _, failure := range failures {
				fmt.Fprintf(out, "  failed %s: %v\n", failure.Path, failure.Error)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d cleanup errors", len(failures))
			}
			return nil
		},
	}
}
