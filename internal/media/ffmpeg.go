package media

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Transcoder produces an adaptive HLS stream from a local input file.
type Transcoder interface {
	TranscodeHLS(ctx context.Context, inputPath, outputDir string) (*HLSResult, error)
}

// Prober answers metadata questions about a local media file.
type Prober interface {
	Duration(ctx context.Context, inputPath string) (int, error)
	ExtractFrame(ctx context.Context, inputPath string, fraction float64, outPath string) error
}

// HLSResult lists the transcoder's output relative to the output directory.
type HLSResult struct {
	// Files holds every produced file (segments, rendition playlists and
	// the master playlist) as paths relative to the output directory.
	Files []string
	// MasterPlaylist is the relative path of the top-level manifest.
	MasterPlaylist string
}

type rendition struct {
	Name      string
	Width     int
	Height    int
	Bandwidth int // bits per second, advertised in the master playlist
	VideoRate string
	MaxRate   string
	BufSize   string
	AudioRate string
}

// defaultRenditions is the fixed ladder: at least two qualities per the
// streaming contract.
var defaultRenditions = []rendition{
	{Name: "360p", Width: 640, Height: 360, Bandwidth: 800_000, VideoRate: "800k", MaxRate: "856k", BufSize: "1200k", AudioRate: "96k"},
	{Name: "720p", Width: 1280, Height: 720, Bandwidth: 2_800_000, VideoRate: "2800k", MaxRate: "2996k", BufSize: "4200k", AudioRate: "128k"},
}

type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	renditions  []rendition
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		renditions:  defaultRenditions,
	}
}

// TranscodeHLS runs one ffmpeg pass per rendition, then writes the master
// playlist referencing them. Returns every file found under outputDir.
func (f *FFmpeg) TranscodeHLS(ctx context.Context, inputPath, outputDir string) (*HLSResult, error) {
	for _, r := range f.renditions {
		renditionDir := filepath.Join(outputDir, r.Name)
		if err := os.MkdirAll(renditionDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create rendition directory %s: %w", renditionDir, err)
		}

		args := renditionArgs(inputPath, renditionDir, r)
		cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		log.Printf("Transcoding %s rendition: %s %s", r.Name, f.ffmpegPath, strings.Join(args, " "))
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffmpeg failed for %s rendition: %w: %s", r.Name, err, stderrTail(stderr.String()))
		}
	}

	masterPath := filepath.Join(outputDir, "master.m3u8")
	if err := os.WriteFile(masterPath, []byte(masterPlaylist(f.renditions)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write master playlist: %w", err)
	}

	files, err := collectOutputs(outputDir)
	if err != nil {
		return nil, err
	}

	return &HLSResult{Files: files, MasterPlaylist: "master.m3u8"}, nil
}

func renditionArgs(inputPath, renditionDir string, r rendition) []string {
	return []string{
		"-hide_banner", "-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", r.Width, r.Height),
		"-c:v", "libx264",
		"-profile:v", "main",
		"-sc_threshold", "0",
		"-g", "48",
		"-keyint_min", "48",
		"-b:v", r.VideoRate,
		"-maxrate", r.MaxRate,
		"-bufsize", r.BufSize,
		"-c:a", "aac",
		"-b:a", r.AudioRate,
		"-hls_time", "4",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(renditionDir, "seg_%03d.ts"),
		filepath.Join(renditionDir, "playlist.m3u8"),
	}
}

func masterPlaylist(renditions []rendition) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, r := range renditions {
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", r.Bandwidth, r.Width, r.Height))
		b.WriteString(r.Name + "/playlist.m3u8\n")
	}
	return b.String()
}

func collectOutputs(outputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect transcoder outputs: %w", err)
	}
	return files, nil
}

// Duration probes the input and reports its length in whole seconds.
func (f *FFmpeg) Duration(ctx context.Context, inputPath string) (int, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", inputPath, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return int(seconds), nil
}

// ExtractFrame captures a single still at the given fraction of playback.
func (f *FFmpeg) ExtractFrame(ctx context.Context, inputPath string, fraction float64, outPath string) error {
	seconds, err := f.Duration(ctx, inputPath)
	if err != nil {
		return err
	}

	offset := float64(seconds) * fraction
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-hide_banner", "-y",
		"-ss", fmt.Sprintf("%.2f", offset),
		"-i", inputPath,
		"-vframes", "1",
		"-q:v", "2",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg frame extraction failed: %w: %s", err, stderrTail(stderr.String()))
	}
	return nil
}

// stderrTail keeps error messages operator-sized: the last few lines of
// ffmpeg's output are where the actual failure reason lives.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
