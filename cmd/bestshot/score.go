package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"go-best-shot/internal/config"
	"go-best-shot/internal/decoder"
	"go-best-shot/internal/resolver"
	"go-best-shot/internal/scoring"
	"go-best-shot/internal/storage"
)

var (
	scoreFaces int
	scoreTags  string
)

var scoreCmd = &cobra.Command{
	Use:   "score <image>",
	Short: "Score a single image file",
	Long: `Score one local image and print the breakdown as JSON.

Face and tag signals are only used when --faces or --tags is given. Without a
--config file the default weights apply.

Example:
  bestshot score ./IMG_0001.jpg
  bestshot score ./IMG_0001.jpg --faces 2 --tags portrait,beach`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().IntVar(&scoreFaces, "faces", 0, "Number of detected faces")
	scoreCmd.Flags().StringVar(&scoreTags, "tags", "", "Comma separated scene tags")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	files := storage.NewFileAssetSource(filepath.Dir(path), cfg.Source.MaxPreviewBytes)

	r, err := resolver.New(files, nil, decoder.NewImageDecoder(cfg.Resolver.MaxPixels), cfg.Scoring.Weights)
	if err != nil {
		return err
	}

	data, err := files.FetchPreview(cmd.Context(), filepath.Base(path))
	if err != nil {
		return err
	}

	var meta *scoring.Metadata
	if cmd.Flags().Changed("faces") || cmd.Flags().Changed("tags") {
		m := scoring.Metadata{}
		if cmd.Flags().Changed("faces") {
			if scoreFaces < 0 {
				return fmt.Errorf("--faces must be >= 0")
			}
			m.FaceCount = &scoreFaces
		}
		if cmd.Flags().Changed("tags") {
			m.HasTags = true
			m.Tags = splitTags(scoreTags)
		}
		meta = &m
	}

	score := r.ScoreBytes(cmd.Context(), filepath.Base(path), data, meta)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(score); err != nil {
		return err
	}
	if score.Failed() {
		return fmt.Errorf("%s could not be scored: %s", args[0], score.Breakdown.Reason)
	}
	return nil
}

func splitTags(s string) []string {
	tags := []string{}
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
