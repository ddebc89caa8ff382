package cli

import (
	"fmt"
	"strings"

	"github.com/lotas/doctrack/internal/analyzer"
	"github.com/spf13/cobra"
)

func (a *app) linksCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "links <url|file>",
		Short: "Check the sidebar links of a page for dead targets and duplicate ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStructure(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			dups := analyzer.FindDuplicates(st.Sidebar)
			for _, d := range dups {
				fmt.Fprintf(a.out, "duplicate  %s  (%s)\n", d.ID, strings.Join(d.Titles, " | "))
			}
			if offline {
				fmt.Fprintf(a.out, "%d duplicate id(s)\n", len(dups))
				return nil
			}

			dead := 0
			for _, r := range analyzer.CheckLinks(cmd.Context(), st.URL, st.Sidebar) {
				if !r.IsDead {
					continue
				}
				dead++
				fmt.Fprintf(a.out, "dead %-11s %s  (%s)\n", r.Reason, r.URL, strings.Join(r.IDs, ", "))
			}
			fmt.Fprintf(a.out, "%d duplicate id(s), %d dead link(s)\n", len(dups), dead)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Only check for duplicate ids")
	return cmd
}
