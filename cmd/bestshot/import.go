package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"go-best-shot/internal/factory"
	"go-best-shot/internal/resolver"
)

var importCmd = &cobra.Command{
	Use:   "import-groups <file.json>",
	Short: "Store duplicate groups in the local database",
	Long: `Import duplicate groups produced by an external grouper.

The file holds a JSON array of groups:
  [{"id": "g1", "asset_ids": ["a", "b", "c"]}]

Groups are stored in source.sqlite_path. Re-importing a group replaces its
members and keeps its original position. Use source.groups: sqlite to resolve
the stored groups with "bestshot run".

Example:
  bestshot import-groups groups.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read groups file: %w", err)
	}
	var groups []resolver.DuplicateGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return fmt.Errorf("invalid groups file: %w", err)
	}

	f := factory.NewComponentFactory(cfg)
	defer f.Close()

	repo, err := f.GroupRepository()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := repo.SaveGroups(cmd.Context(), groups); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d groups into %s\n", len(groups), cfg.Source.SQLitePath)
	return nil
}
