// Command rulecheck validates a querycache config file and answers questions
// about its invalidation rules.
//
//	rulecheck validate querycache.yaml
//	rulecheck rules querycache.yaml
//	rulecheck affects querycache.yaml 'bookings{"status":"pending"}'
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/mutation"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rulecheck",
		Short:        "Validate querycache config and inspect invalidation rules",
		SilenceUsage: true,
	}
	root.AddCommand(validateCmd(), rulesCmd(), affectsCmd())
	return root
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(args[0])
			if err != nil {
				return err
			}
			rules := c.RuleTable()
			if err := rules.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d rules, %d staleness windows, provider %s, codec %s\n",
				len(rules), len(c.Staleness()), c.Provider.Kind, c.Cache.Codec)
			return nil
		},
	}
}

func rulesCmd() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "rules <config>",
		Short: "Print the effective rule table as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(args[0])
			if err != nil {
				return err
			}
			rules := c.RuleTable()
			if only != "" {
				r, ok := rules[only]
				if !ok {
					return fmt.Errorf("%w: %q", mutation.ErrUnknownMutation, only)
				}
				rules = mutation.Table{only: r}
			}
			return writeJSON(cmd.OutOrStdout(), rules)
		},
	}
	cmd.Flags().StringVar(&only, "mutation", "", "print only this mutation kind")
	return cmd
}

func affectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "affects <config> <key>",
		Short: "List the mutations whose success marks key stale",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(args[0])
			if err != nil {
				return err
			}
			key, err := querycache.ParseKey(args[1])
			if err != nil {
				return err
			}
			hits, err := affecting(c.RuleTable(), key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintf(out, "no mutation invalidates %s\n", key)
				return nil
			}
			for _, h := range hits {
				fmt.Fprintln(out, h)
			}
			return nil
		},
	}
}

// affecting returns "kind\tfamily" for every rule family matching key, sorted.
func affecting(t mutation.Table, key querycache.Key) ([]string, error) {
	var hits []string
	for kind, r := range t {
		fams, err := r.Families()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		for _, f := range fams {
			if f.Matches(key) {
				hits = append(hits, kind+"\t"+f.String())
			}
		}
	}
	sort.Strings(hits)
	return hits, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
