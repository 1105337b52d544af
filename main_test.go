package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ucla.png")
	writePNG(t, input, 64, 64)
	outDir := filepath.Join(dir, "frames")
	sheetPath := filepath.Join(dir, "sheet.pdf")

	out, err := execute(t, "--input", input, "--out", outDir, "--step", "120", "--count", "3", "--sheet", sheetPath)
	if err != nil {
		t.Fatalf("command failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Wrote 3 thumbnails") {
		t.Errorf("unexpected output: %s", out)
	}

	for _, name := range []string{"ucla-0", "ucla-120", "ucla-240"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(sheetPath); err != nil {
		t.Errorf("missing contact sheet: %v", err)
	}
}

func TestSweepCommandConfigFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "seven.png")
	writePNG(t, input, 40, 40)

	cfgPath := filepath.Join(dir, "rotathumb.yaml")
	cfgData := "render:\n  source: " + input + "\n  angles: [0, 45]\n  pattern: \"{name}_{angle}.png\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfgData), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if out, err := execute(t, "--config", cfgPath, "--fill", "black"); err != nil {
		t.Fatalf("command failed: %v\n%s", err, out)
	}
	for _, name := range []string{"seven_0.png", "seven_45.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestSweepCommandErrors(t *testing.T) {
	if _, err := execute(t, "--input", filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing input")
	}
	if _, err := execute(t, "--input", "x.png", "--engine", "magick"); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestBenchCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bench.png")
	writePNG(t, input, 32, 32)

	out, err := execute(t, "bench", "--input", input, "--count", "4")
	if err != nil {
		t.Fatalf("bench failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Performance Summary") || !strings.Contains(out, "(4 frames)") {
		t.Errorf("unexpected output: %s", out)
	}
	// Cached runs must not write next to the input
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the input in %s, found %d entries", dir, len(entries))
	}
}
