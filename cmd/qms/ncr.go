package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/isoqms/qms/internal/ncr"
	"github.com/spf13/cobra"
)

func newNCRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ncr",
		Short: "Non-conformance report commands",
	}

	cmd.AddCommand(newNCRGetCmd())
	cmd.AddCommand(newNCRListCmd())
	cmd.AddCommand(newNCRApproveCmd())
	cmd.AddCommand(newNCRCommentCmd())
	return cmd
}

func newNCRGetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print an NCR as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.close()

			nc, err := a.store.NCRs().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nc)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	return cmd
}

func newNCRListCmd() *cobra.Command {
	var (
		configPath string
		filters    ncr.Filters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List NCRs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNCRList(cmd, configPath, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (OPEN, IN_PROGRESS, CLOSED)")
	cmd.Flags().StringVar(&filters.Severity, "severity", "", "filter by severity (MINOR, MAJOR, CRITICAL)")
	cmd.Flags().StringVar(&filters.InspectionID, "inspection", "", "filter by inspection id")
	cmd.Flags().IntVar(&filters.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&filters.Limit, "limit", 20, "page size")
	return cmd
}

func runNCRList(cmd *cobra.Command, configPath string, filters ncr.Filters) error {
	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.store.NCRs().List(cmd.Context(), filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.Items) == 0 {
		fmt.Fprintln(out, "No NCRs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINSPECTION\tITEM\tSEVERITY\tSTATUS\tRESPONSIBLE\tDESCRIPTION")
	for _, n := range res.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, n.InspectionID, n.ItemID, n.Severity, n.Status,
			truncate(n.ResponsiblePerson, 20), truncate(n.Description, 40))
	}
	w.Flush()
	fmt.Fprintf(out, "\nPage %d, %d of %d NCR(s)\n", res.Page, len(res.Items), res.Total)
	return nil
}

func newNCRApproveCmd() *cobra.Command {
	var (
		configPath string
		who        identityFlags
	)

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Close an NCR (ADMIN or MANAGER only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.close()

			nc, err := a.store.NCRs().Approve(cmd.Context(), args[0], who.identity())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "NCR %s closed by %s\n", nc.ID, nc.ClosedBy)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	who.register(cmd)
	return cmd
}

func newNCRCommentCmd() *cobra.Command {
	var (
		configPath  string
		text        string
		attachments []string
		who         identityFlags
	)

	cmd := &cobra.Command{
		Use:   "comment <id>",
		Short: "Add a comment to an NCR thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore(cmd, configPath)
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.store.NCRs().AddComment(cmd.Context(), args[0], who.identity(), text, attachments)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added comment %s to NCR %s\n", c.ID, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	cmd.Flags().StringVarP(&text, "text", "t", "", "comment text")
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "attachment reference (repeatable)")
	who.register(cmd)
	return cmd
}
