package main

import (
	"fmt"
	"strconv"

	"github.com/ds124wfegd/imagecaption/internal/pkg/styles"
	"github.com/spf13/cobra"
)

func newStylesCommand(_ *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List caption styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := styles.Default().List()

			headers := []string{"ID", "Name", "Description"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft}
			if verbose {
				headers = append(headers, "Beams", "Temp", "Length")
				aligns = append(aligns, alignRight, alignRight, alignRight)
			}

			rows := make([][]string, 0, len(specs))
			for _, s := range specs {
				row := []string{string(s.ID), s.Name, s.Description}
				if verbose {
					row = append(row,
						strconv.Itoa(s.Params.BeamWidth),
						strconv.FormatFloat(s.Params.Temperature, 'f', 1, 64),
						fmt.Sprintf("%d-%d", s.Params.MinLength, s.Params.MaxLength))
				}
				rows = append(rows, row)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show decoding parameters")
	return cmd
}
