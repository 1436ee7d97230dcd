package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/isoqms/qms/internal/export"
	"github.com/isoqms/qms/internal/inspection"
	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/ncr"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newInspectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inspection",
		Aliases: []string{"ins"},
		Short:   "Inspection record commands",
	}

	cmd.AddCommand(newInspectionSaveCmd())
	cmd.AddCommand(newInspectionGetCmd())
	cmd.AddCommand(newInspectionListCmd())
	cmd.AddCommand(newInspectionDeleteCmd())
	cmd.AddCommand(newInspectionExportCmd())
	cmd.AddCommand(newInspectionStatsCmd())
	return cmd
}

func newInspectionSaveCmd() *cobra.Command {
	var (
		configPath string
		file       string
		who        identityFlags
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or replace an inspection record from JSON",
		Long: `Reads one inspection record as JSON and saves it. Inline data: images are
moved to the image table and failed checks raise or update NCRs. Use -f - to
read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionSave(cmd, configPath, file, who.identity())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record file, or - for stdin")
	cmd.MarkFlagRequired("file")
	who.register(cmd)
	return cmd
}

func runInspectionSave(cmd *cobra.Command, configPath, file string, who models.Identity) error {
	rec, err := readRecord(cmd, file)
	if err != nil {
		return err
	}

	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Save(cmd.Context(), rec, who); err != nil {
		var verr *inspection.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Fields {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", fe.Field, fe.Message)
			}
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved inspection %s\n", rec.ID)
	return nil
}

func readRecord(cmd *cobra.Command, file string) (*models.Inspection, error) {
	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open record: %w", err)
		}
		defer f.Close()
		r = f
	}

	var rec models.Inspection
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func newInspectionGetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print an inspection record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionGet(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	return cmd
}

func runInspectionGet(cmd *cobra.Command, configPath, id string) error {
	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), rec)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInspectionListCmd() *cobra.Command {
	var (
		configPath string
		filters    inspection.ListFilters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspection summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionList(cmd, configPath, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	cmd.Flags().StringVar(&filters.Search, "search", "", "match id, project code, project name or item")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (ALL for any)")
	cmd.Flags().StringVar(&filters.Type, "type", "", "filter by record type (ALL for any)")
	cmd.Flags().IntVar(&filters.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&filters.Limit, "limit", inspection.DefaultLimit, "page size")
	return cmd
}

func runInspectionList(cmd *cobra.Command, configPath string, filters inspection.ListFilters) error {
	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.store.List(cmd.Context(), filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.Items) == 0 {
		fmt.Fprintln(out, "No inspections found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPROJECT\tITEM\tINSPECTOR\tSTATUS\tSCORE\tUPDATED")
	for _, s := range res.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Type, truncate(s.ProjectCode, 20), truncate(s.ItemTitle, 30),
			truncate(s.Inspector, 20), s.Status, s.Score, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	fmt.Fprintf(out, "\nPage %d, %d of %d record(s)\n", res.Page, len(res.Items), res.Total)
	return nil
}

func newInspectionDeleteCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an inspection record with its images and NCRs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionDelete(cmd, configPath, args[0], yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runInspectionDelete(cmd *cobra.Command, configPath, id string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	if !skipConfirm {
		ok, err := confirmDelete(cmd, id)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	deleted, err := a.store.Delete(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintf(out, "Inspection %s not found\n", id)
		return nil
	}
	fmt.Fprintf(out, "Deleted inspection %s\n", id)
	return nil
}

// confirmDelete prompts on stdin. A non-interactive stdin must pass --yes.
func confirmDelete(cmd *cobra.Command, id string) (bool, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("refusing to delete %s without a terminal; pass --yes", id)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "This will permanently delete inspection %q, its images and its NCRs.\n", id)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes", nil
	}
	return false, nil
}

func newInspectionExportCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		withNCRs   bool
		filters    inspection.ListFilters
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export inspection summaries to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionExport(cmd, configPath, outPath, withNCRs, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "inspections.xlsx", "output workbook path")
	cmd.Flags().BoolVar(&withNCRs, "with-ncrs", false, "add a sheet with all NCRs")
	cmd.Flags().StringVar(&filters.Search, "search", "", "match id, project code, project name or item")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (ALL for any)")
	cmd.Flags().StringVar(&filters.Type, "type", "", "filter by record type (ALL for any)")
	return cmd
}

func runInspectionExport(cmd *cobra.Command, configPath, outPath string, withNCRs bool, filters inspection.ListFilters) error {
	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	var summaries []inspection.Summary
	filters.Limit = inspection.MaxLimit
	for page := 1; ; page++ {
		filters.Page = page
		res, err := a.store.List(ctx, filters)
		if err != nil {
			return err
		}
		summaries = append(summaries, res.Items...)
		if len(res.Items) < res.Limit || int64(len(summaries)) >= res.Total {
			break
		}
	}

	var ncrs []models.NonConformance
	if withNCRs {
		ncrs = []models.NonConformance{}
		for page := 1; ; page++ {
			res, err := a.store.NCRs().List(ctx, ncr.Filters{Page: page, Limit: inspection.MaxLimit})
			if err != nil {
				return err
			}
			ncrs = append(ncrs, res.Items...)
			if len(res.Items) < res.Limit || int64(len(ncrs)) >= res.Total {
				break
			}
		}
	}

	f, err := export.Workbook(summaries, ncrs)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d inspection(s)", len(summaries))
	if withNCRs {
		fmt.Fprintf(cmd.OutOrStdout(), " and %d NCR(s)", len(ncrs))
	}
	fmt.Fprintf(cmd.OutOrStdout(), " to %s\n", outPath)
	return nil
}

func newInspectionStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts by status and type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionStats(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to QMS config file")
	return cmd
}

func runInspectionStats(cmd *cobra.Command, configPath string) error {
	a, err := openStore(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total:     %d\n", st.Total)
	fmt.Fprintf(out, "Completed: %d\n", st.Completed)
	fmt.Fprintf(out, "Flagged:   %d\n", st.Flagged)

	types := make([]string, 0, len(st.ByType))
	for t := range st.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	if len(types) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCOUNT")
		for _, t := range types {
			fmt.Fprintf(w, "%s\t%d\n", t, st.ByType[t])
		}
		w.Flush()
	}
	return nil
}
