package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"tattle/internal/record"
	"tattle/internal/store"
)

// writerIsTerminal reports whether the command's output writer is an
// interactive terminal. Redirected or injected writers get JSON lines.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func newRecentCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest notifications in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if limit <= 0 {
				return withCode(exitConfig, fmt.Errorf("limit must be positive, got %d", limit))
			}

			reader, err := store.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				if errors.Is(err, store.ErrSchemaMismatch) {
					return withCode(exitSchema, err)
				}
				return withCode(exitOpen, err)
			}
			defer reader.Close()

			rows, err := reader.FetchRecent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("fetch recent rows: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON || !writerIsTerminal(out) {
				enc := json.NewEncoder(out)
				for _, row := range rows {
					rec, err := record.FromPayload(row.RowID, row.Data)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "tattle: row %d: %v\n", row.RowID, err)
						continue
					}
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			}

			headers := []string{"Row", "App", "Title", "Body", "Date"}
			var tableRows [][]string
			for _, row := range rows {
				rec, err := record.FromPayload(row.RowID, row.Data)
				if err != nil {
					tableRows = append(tableRows, []string{
						strconv.FormatInt(row.RowID, 10), "", "", "(undecodable payload)", "",
					})
					continue
				}
				sum := rec.Summary()
				date := ""
				if !sum.Date.IsZero() {
					date = sum.Date.Local().Format("2006-01-02 15:04:05")
				}
				tableRows = append(tableRows, []string{
					strconv.FormatInt(row.RowID, 10),
					sum.BundleID,
					sum.Title,
					sum.Body,
					date,
				})
			}
			fmt.Fprintln(out, renderTable(headers, tableRows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of notifications to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON lines instead of a table")
	return cmd
}
