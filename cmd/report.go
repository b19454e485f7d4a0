package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	repository "github.com/okian/facegate/internal/adapters/repository"
	"github.com/okian/facegate/internal/domain/ledger"
	"github.com/okian/facegate/internal/domain/model"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print attendance records from the configured ledger",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().String("date", "", "Only this day (YYYY-MM-DD)")
	reportCmd.Flags().String("identity", "", "Only this identity")
	reportCmd.Flags().Bool("json", false, "Output as JSON")
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	date, _ := cmd.Flags().GetString("date")
	identity, _ := cmd.Flags().GetString("identity")
	asJSON, _ := cmd.Flags().GetBool("json")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	store, err := repository.Open(ctx, cfg.LedgerBackend, cfg.LedgerPath, cfg.LedgerDSN)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	led := ledger.New(store, ledger.WithLocation(loc), ledger.WithBackendName(store.Name()))
	if err := led.Load(ctx); err != nil {
		return err
	}
	records := led.Snapshot(ledger.Filter{Date: date, Identity: identity})
	return writeReport(cmd.OutOrStdout(), records, asJSON)
}

func writeReport(out io.Writer, records []model.DayRecord, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []model.DayRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"count": len(records), "records": records})
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tIDENTITY\tENTRY\tEXIT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Date, r.Identity, orDash(r.EntryTime), orDash(r.ExitTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d record(s)\n", len(records))
	return nil
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
