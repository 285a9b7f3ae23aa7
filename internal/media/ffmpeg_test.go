package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMasterPlaylist(t *testing.T) {
	content := masterPlaylist(defaultRenditions)

	if !strings.HasPrefix(content, "#EXTM3U\n") {
		t.Fatalf("master playlist missing #EXTM3U header:\n%s", content)
	}
	if !strings.Contains(content, "BANDWIDTH=800000,RESOLUTION=640x360") {
		t.Errorf("master playlist missing 360p stream info:\n%s", content)
	}
	if !strings.Contains(content, "BANDWIDTH=2800000,RESOLUTION=1280x720") {
		t.Errorf("master playlist missing 720p stream info:\n%s", content)
	}
	if !strings.Contains(content, "360p/playlist.m3u8") || !strings.Contains(content, "720p/playlist.m3u8") {
		t.Errorf("master playlist missing rendition playlist paths:\n%s", content)
	}
}

func TestRenditionArgs(t *testing.T) {
	r := defaultRenditions[0]
	args := renditionArgs("/tmp/in.mp4", "/tmp/out/360p", r)

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "scale=w=640:h=360") {
		t.Errorf("expected 360p scale filter, got %s", joined)
	}
	if !strings.Contains(joined, "-b:v 800k") {
		t.Errorf("expected 800k video bitrate, got %s", joined)
	}
	if !strings.Contains(joined, "-hls_playlist_type vod") {
		t.Errorf("expected vod playlist type, got %s", joined)
	}
	if args[len(args)-1] != filepath.Join("/tmp/out/360p", "playlist.m3u8") {
		t.Errorf("expected playlist path as final arg, got %s", args[len(args)-1])
	}
}

func TestCollectOutputs(t *testing.T) {
	dir := t.TempDir()

	paths := []string{
		"master.m3u8",
		filepath.Join("360p", "playlist.m3u8"),
		filepath.Join("360p", "seg_000.ts"),
		filepath.Join("720p", "playlist.m3u8"),
		filepath.Join("720p", "seg_000.ts"),
	}
	for _, p := range paths {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectOutputs(dir)
	if err != nil {
		t.Fatalf("collectOutputs failed: %v", err)
	}
	if len(files) != len(paths) {
		t.Fatalf("expected %d files, got %d: %v", len(paths), len(files), files)
	}

	found := make(map[string]bool, len(files))
	for _, f := range files {
		found[f] = true
	}
	for _, p := range paths {
		if !found[p] {
			t.Errorf("expected %s in collected outputs, got %v", p, files)
		}
	}
}

func TestStderrTail(t *testing.T) {
	long := "l1\nl2\nl3\nl4\nl5\nl6\nl7"
	tail := stderrTail(long)
	if strings.Contains(tail, "l1") || strings.Contains(tail, "l2") {
		t.Errorf("expected only trailing lines, got %q", tail)
	}
	if !strings.Contains(tail, "l7") {
		t.Errorf("expected last line present, got %q", tail)
	}

	if got := stderrTail("only line"); got != "only line" {
		t.Errorf("expected passthrough for short output, got %q", got)
	}
}
