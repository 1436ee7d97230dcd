package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/isoqms/qms/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBPingCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and columns",
		Long: `Runs one schema synchronization pass. Missing form tables are created and
missing columns added; nothing is dropped or altered. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	a, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.synchronizer().EnsureSchema(cmd.Context())
	if err != nil {
		return err
	}
	printSyncReport(cmd, report)

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("schema sync: %d table(s) failed", len(failed))
	}
	return nil
}

func printSyncReport(cmd *cobra.Command, report *db.SyncReport) {
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tFAMILY\tCREATED\tVERSION\tADDED\tERROR")
	rows := append(append([]db.TableReport{}, report.Shared...), report.Forms...)
	for _, tr := range rows {
		family := string(tr.Family)
		if family == "" {
			family = "shared"
		}
		version := "-"
		if tr.Family != "" {
			version = fmt.Sprintf("%d->%d", tr.FromVersion, tr.ToVersion)
		}
		added := "-"
		if len(tr.Added) > 0 {
			added = strings.Join(tr.Added, ",")
		}
		errText := "-"
		if tr.Err != nil {
			errText = truncate(tr.Err.Error(), 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n", tr.Table, family, tr.Created, version, truncate(added, 50), errText)
	}
	w.Flush()
}

func newDBPingCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPing(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	return cmd
}

func runDBPing(cmd *cobra.Command, configPath string) error {
	a, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := db.Ping(cmd.Context(), a.db, a.retry, a.cfg.Database.Pool.ConnectTimeout); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", a.cfg.Database.Driver)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
