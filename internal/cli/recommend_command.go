package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"seqgen/internal/validate"
)

func newRecommendCmd() *cobra.Command {
	var layoutPath string
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "List suggested model groups for a layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp(cmd)
			file, err := validate.Stat(layoutPath)
			if err != nil {
				return err
			}
			if file == nil {
				return errLayoutRequired
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.RecommendGroups(cmd.Context(), file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return emit(out, a, resp, func() error {
				if len(resp.Recommendations) == 0 {
					fmt.Fprintln(out, "no suggestions")
					return nil
				}
				t := newTable(out)
				t.AppendHeader(table.Row{"Name", "Members", "Reason"})
				for _, r := range resp.Recommendations {
					t.AppendRow(table.Row{r.Name, strings.Join(r.Members, ", "), r.Reason})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "layout XML file")
	_ = cmd.MarkFlagRequired("layout")
	return cmd
}
