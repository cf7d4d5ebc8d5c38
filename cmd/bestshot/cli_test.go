package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

// runCLI executes the root command with fresh flag state
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, logLevel = "", ""
	for _, cmd := range rootCmd.Commands() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string, edges bool) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(128)
			if edges && (x/4+y/4)%2 == 0 {
				v = 230
			} else if edges {
				v = 30
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := fmt.Sprintf(`
log:
  level: error
source:
  assets: file
  metadata: none
  groups: sqlite
  dir: %q
  sqlite_path: %q
effects:
  mode: none
`, dir, filepath.Join(dir, "groups.db"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplitTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"portrait", []string{"portrait"}},
		{" portrait , beach,,", []string{"portrait", "beach"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitTags(tt.in)); diff != "" {
			t.Errorf("splitTags(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestImportAndRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	writePNG(t, filepath.Join(dir, "flat.png"), false)
	writePNG(t, filepath.Join(dir, "edges.png"), true)

	groupsPath := filepath.Join(dir, "groups.json")
	groups := `[{"id": "g1", "asset_ids": ["flat.png", "edges.png", "gone.png"]}]`
	if err := os.WriteFile(groupsPath, []byte(groups), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "import-groups", groupsPath, "--config", cfgPath)
	if err != nil {
		t.Fatalf("import-groups failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 1 groups") {
		t.Errorf("unexpected import output: %s", out)
	}

	out, err = runCLI(t, "run", "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	var summary struct {
		Groups  int `json:"groups"`
		Results []struct {
			GroupID    string   `json:"group_id"`
			Winner     string   `json:"winner"`
			Alternates []string `json:"alternates"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, out)
	}
	if summary.Groups != 1 || len(summary.Results) != 1 {
		t.Fatalf("expected one resolved group, got %+v", summary)
	}
	res := summary.Results[0]
	if res.Winner != "edges.png" {
		t.Errorf("winner = %q, want edges.png", res.Winner)
	}
	if diff := cmp.Diff([]string{"flat.png", "gone.png"}, res.Alternates); diff != "" {
		t.Errorf("alternates mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edges.png")
	writePNG(t, path, true)

	out, err := runCLI(t, "score", path, "--faces", "3", "--tags", "portrait")
	if err != nil {
		t.Fatalf("score failed: %v\n%s", err, out)
	}

	var score struct {
		AssetID   string  `json:"asset_id"`
		Total     float64 `json:"total"`
		Breakdown struct {
			Face float64 `json:"face"`
			Tags float64 `json:"tags"`
		} `json:"breakdown"`
	}
	if err := json.Unmarshal([]byte(out), &score); err != nil {
		t.Fatalf("score output is not JSON: %v\n%s", err, out)
	}
	if score.AssetID != "edges.png" {
		t.Errorf("asset_id = %q, want edges.png", score.AssetID)
	}
	if score.Breakdown.Face != 1 {
		t.Errorf("face = %v, want 1", score.Breakdown.Face)
	}
	if math.Abs(score.Breakdown.Tags-0.85) > 1e-9 {
		t.Errorf("tags = %v, want 0.85", score.Breakdown.Tags)
	}
	if score.Total <= 0 {
		t.Errorf("total = %v, want > 0", score.Total)
	}
}

func TestScoreCommand_Undecodable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, "score", path)
	if err == nil || !strings.Contains(err.Error(), "decode_failed") {
		t.Fatalf("expected decode_failed error, got %v", err)
	}
}
