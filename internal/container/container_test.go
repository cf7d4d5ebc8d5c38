package container

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go-best-shot/internal/config"
	"go-best-shot/internal/resolver"
	"go-best-shot/internal/service"
)

func writePNG(t *testing.T, path string, fill func(x, y int) uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("Failed to write PNG: %v", err)
	}
}

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "flat"), func(x, y int) uint8 { return 128 })
	writePNG(t, filepath.Join(dir, "edges"), func(x, y int) uint8 { return uint8(40 + (x/4%2)*160) })

	cfg := config.Default()
	cfg.Source.Assets = "file"
	cfg.Source.Dir = dir
	cfg.Source.Metadata = "none"
	cfg.Source.Groups = "sqlite"
	cfg.Source.SQLitePath = filepath.Join(dir, "bestshot.db")
	cfg.Effects.Mode = "none"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Offline config invalid: %v", err)
	}
	return cfg
}

func TestContainer_OfflineRun(t *testing.T) {
	c, err := NewContainer(offlineConfig(t))
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	repo := c.Repository()
	if repo == nil {
		t.Fatal("Expected a repository for the configured sqlite path")
	}
	groups := []resolver.DuplicateGroup{
		{ID: "g1", AssetIDs: []string{"flat", "edges", "gone"}},
	}
	if err := repo.SaveGroups(ctx, groups); err != nil {
		t.Fatalf("SaveGroups failed: %v", err)
	}

	summary, err := c.Service().Run(ctx, service.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Groups != 1 || summary.Degraded != 0 || !summary.DryRun {
		t.Errorf("Unexpected summary %+v", summary)
	}

	res := summary.Results[0]
	if res.Winner != "flat" && res.Winner != "edges" {
		t.Errorf("Expected a decodable winner, got %s", res.Winner)
	}
	last := res.Scores[len(res.Scores)-1]
	if last.AssetID != "gone" || last.Breakdown.Reason != resolver.ReasonNoPreview {
		t.Errorf("Expected missing asset ranked last with no_preview, got %+v", last)
	}

	runs, err := repo.RunCount(ctx)
	if err != nil || runs != 1 {
		t.Errorf("Expected one recorded run, got %d (err %v)", runs, err)
	}

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected healthy handler, got %d", w.Code)
	}
}

func TestNewContainer_Errors(t *testing.T) {
	if _, err := NewContainer(nil); err == nil {
		t.Error("Expected error without configuration")
	}

	cfg := offlineConfig(t)
	cfg.Source.Metadata = "static"
	cfg.Source.MetadataPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := NewContainer(cfg); err == nil {
		t.Error("Expected error for missing metadata file")
	}
}
