// File: cmd/sources.go
package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/registry"
)

// newSourcesCmd lists the source catalog after config overrides.
func newSourcesCmd() *cobra.Command {
	var tierName string

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List the configured signal sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			reg, err := registry.Build(cfg.Sources())
			if err != nil {
				return fmt.Errorf("failed to build source registry: %w", err)
			}

			specs := reg.All()
			if tierName != "" {
				tier, err := schemas.ParseTier(tierName)
				if err != nil {
					return err
				}
				specs = reg.ForTier(tier)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tTIER\tTRUST\tENDPOINT\tFIELDS")
			for _, s := range specs {
				endpoint := s.QueryTemplate
				if !s.HasEndpoint() {
					endpoint = "(not configured)"
				}
				fields := make([]string, 0, len(s.Fields))
				for name := range s.Fields {
					fields = append(fields, name)
				}
				sort.Strings(fields)
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
					s.ID, s.Category, s.Tier, s.Trust, endpoint, strings.Join(fields, ","))
			}
			return w.Flush()
		},
	}

	sourcesCmd.Flags().StringVarP(&tierName, "tier", "t", "", "Only list sources queried at this tier")
	return sourcesCmd
}
