package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/straja-ai/ulap/internal/registry"
)

var categoriesJSON bool

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the known cloud categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		return printCategories(cmd.OutOrStdout(), reg, categoriesJSON)
	},
}

func init() {
	categoriesCmd.Flags().BoolVar(&categoriesJSON, "json", false, "print JSON")
}

func printCategories(w io.Writer, reg *registry.Registry, asJSON bool) error {
	recs := reg.Records()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	for _, r := range recs {
		if _, err := fmt.Fprintf(w, "%2d  %-16s %s\n", r.Index, r.Name, r.Indication); err != nil {
			return err
		}
	}
	return nil
}
