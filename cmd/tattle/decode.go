package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tattle/internal/plist"
)

func newDecodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a binary plist blob to JSON",
		Long: "Decode a raw notification payload (or any binary plist) and print " +
			"it as indented JSON. Reads stdin when no file is given or the file " +
			"is \"-\".",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			value, err := plist.Decode(data)
			if err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}

			encoded, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return fmt.Errorf("render payload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	return cmd
}
