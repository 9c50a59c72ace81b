package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/review-scraper/internal/rules"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect rule files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Parse and validate a rule file, then print its fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			path := e.cfg.Rules
			if len(args) == 1 {
				path = args[0]
			}
			rs, err := rules.Load(path)
			if err != nil {
				return err
			}
			return describeRules(e.out, path, rs)
		},
	})
	return cmd
}

func describeRules(w io.Writer, path string, rs *rules.Config) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Item", "Field", "Selector", "Source", "Normalization"})
	for _, item := range rs.Items {
		for _, f := range item.Fields {
			steps := make([]string, 0, len(rs.Fields[f.Name]))
			for _, s := range rs.Fields[f.Name] {
				steps = append(steps, string(s.Kind))
			}
			t.AppendRow(table.Row{item.Name, f.Name, f.Selector, f.Source.String(), strings.Join(steps, " > ")})
		}
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s ok: %d item rule(s), columns %s, key %s, wait %s, max_retries %d\n",
		path, len(rs.Items), strings.Join(rs.OutputColumns(), ","), keyDescription(rs.KeyFields),
		rs.WaitCondition, rs.MaxRetries)
	return err
}

func keyDescription(keys []string) string {
	if len(keys) == 0 {
		return "item_index"
	}
	return strings.Join(keys, "+")
}
