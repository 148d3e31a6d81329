package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clipflow/clipflow/internal/domain"
	"github.com/clipflow/clipflow/internal/infrastructure/logger"
	"github.com/clipflow/clipflow/internal/port"
)

const (
	segmentSeconds = 6
	fallbackHeight = 1080

	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
	thumbContentType    = "image/jpeg"
)

// Progress span per phase. Renditions share the 10..95 band evenly.
const (
	progressDownloading = 2
	progressProbing     = 8
	progressEncodeStart = 10
	progressEncodeEnd   = 95
	progressPlaylist    = 97
)

// Uploader is the retrying put-object client the transcoder pushes segments,
// playlists and the thumbnail through.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, contentType string) error
	UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error
}

// Transcoder drives ffmpeg/ffprobe to turn one source file into an HLS
// package plus thumbnail, uploading every artifact as it goes.
type Transcoder struct {
	objects     port.ObjectStore
	uploader    Uploader
	ffmpegPath  string
	ffprobePath string
}

func NewTranscoder(objects port.ObjectStore, uploader Uploader, ffmpegPath, ffprobePath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Transcoder{
		objects:     objects,
		uploader:    uploader,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

func (t *Transcoder) Process(ctx context.Context, job domain.TranscodeJob, report port.ProgressFunc) (*port.TranscodeResult, error) {
	workDir, err := os.MkdirTemp("", "clipflow-"+job.MediaID+"-")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath, err := t.localSource(ctx, job, workDir, report)
	if err != nil {
		return nil, err
	}

	item := domain.MediaItem{ID: job.MediaID}
	hlsPrefix := item.HLSPrefix()

	// Thumbnail is best effort: a failure is logged and the job carries on.
	thumbKey := ""
	if err := t.thumbnail(ctx, job, sourcePath, workDir, item.ThumbKey()); err != nil {
		logger.Warn.Printf("thumbnail for media %s failed: %v", logger.SanitizeForLog(job.MediaID), err)
	} else {
		thumbKey = item.ThumbKey()
	}

	report("probing", progressProbing)
	height, err := t.probeHeight(ctx, sourcePath)
	if err != nil {
		logger.Warn.Printf("probe for media %s failed, assuming %dp: %v", logger.SanitizeForLog(job.MediaID), fallbackHeight, err)
		height = fallbackHeight
	}

	ladder := domain.SelectLadder(height)
	span := progressEncodeEnd - progressEncodeStart
	for i, rendition := range ladder {
		report(rendition.Name, progressEncodeStart+span*i/len(ladder))
		if err := t.encodeRendition(ctx, sourcePath, workDir, rendition); err != nil {
			return nil, fmt.Errorf("encode %s: %w", rendition.Name, err)
		}
		if err := t.uploadRendition(ctx, job.Bucket, hlsPrefix, workDir, rendition); err != nil {
			return nil, fmt.Errorf("upload %s: %w", rendition.Name, err)
		}
	}

	report("playlist", progressPlaylist)
	master := domain.MasterPlaylist(ladder)
	masterKey := item.MasterKey()
	reader := strings.NewReader(master)
	if err := t.uploader.Upload(ctx, job.Bucket, masterKey, reader, int64(len(master)), playlistContentType); err != nil {
		return nil, fmt.Errorf("upload master playlist: %w", err)
	}

	return &port.TranscodeResult{MasterKey: masterKey, ThumbnailKey: thumbKey}, nil
}

// localSource resolves the job's source locator to a readable local path,
// fetching from object storage when only a key survived (post-crash
// recovery).
func (t *Transcoder) localSource(ctx context.Context, job domain.TranscodeJob, workDir string, report port.ProgressFunc) (string, error) {
	switch job.Source.Kind {
	case domain.SourceLocal:
		if _, err := os.Stat(job.Source.Path); err != nil {
			return "", fmt.Errorf("local source: %w", err)
		}
		return job.Source.Path, nil
	case domain.SourceRemote:
		report("downloading", progressDownloading)
		localPath := filepath.Join(workDir, "source"+filepath.Ext(job.Filename))
		if err := t.objects.FetchToFile(ctx, job.Bucket, job.Source.Key, localPath); err != nil {
			return "", fmt.Errorf("fetch source %s: %w", job.Source.Key, err)
		}
		return localPath, nil
	default:
		return "", fmt.Errorf("unknown source locator kind %q", job.Source.Kind)
	}
}

func (t *Transcoder) thumbnail(ctx context.Context, job domain.TranscodeJob, sourcePath, workDir, key string) error {
	thumbPath := filepath.Join(workDir, "thumb.jpg")
	args := []string{
		"-ss", "00:00:01",
		"-i", sourcePath,
		"-vframes", "1",
		"-vf", "scale=320:180:force_original_aspect_ratio=decrease",
		"-f", "image2",
		"-y", thumbPath,
	}
	if err := t.runFFmpeg(ctx, args); err != nil {
		return err
	}
	return t.uploader.UploadFile(ctx, job.Bucket, key, thumbPath, thumbContentType)
}

func (t *Transcoder) probeHeight(ctx context.Context, sourcePath string) (int, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		sourcePath,
	}
	cmd := exec.CommandContext(ctx, t.ffprobePath, args...)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "video" && stream.Height > 0 {
			return stream.Height, nil
		}
	}
	return 0, fmt.Errorf("no video stream found")
}

// encodeRendition writes VOD HLS segments and the per-rendition playlist into
// workDir/<name>/. The scale+pad filter keeps the aspect ratio and letterboxes
// to the exact target dimensions.
func (t *Transcoder) encodeRendition(ctx context.Context, sourcePath, workDir string, r domain.Rendition) error {
	outDir := filepath.Join(workDir, r.Name)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create rendition directory: %w", err)
	}

	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		r.Width, r.Height, r.Width, r.Height)

	args := []string{
		"-i", sourcePath,
		"-vf", filter,
		"-c:v", "libx264",
		"-profile:v", "main",
		"-preset", "medium",
		"-sc_threshold", "0",
		"-g", "48",
		"-keyint_min", "48",
		"-b:v", fmt.Sprintf("%dk", r.VideoBitrate),
		"-maxrate", fmt.Sprintf("%dk", r.VideoBitrate*107/100),
		"-bufsize", fmt.Sprintf("%dk", r.VideoBitrate*3/2),
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", fmt.Sprintf("%dk", r.AudioBitrate),
		"-hls_time", fmt.Sprintf("%d", segmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, r.Name+"_%03d.ts"),
		"-y", filepath.Join(outDir, r.Name+".m3u8"),
	}
	return t.runFFmpeg(ctx, args)
}

// uploadRendition pushes every segment and the rendition playlist, choosing
// the content type by extension.
func (t *Transcoder) uploadRendition(ctx context.Context, bucket, hlsPrefix, workDir string, r domain.Rendition) error {
	outDir := filepath.Join(workDir, r.Name)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return fmt.Errorf("read rendition directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key := hlsPrefix + r.Name + "/" + entry.Name()
		contentType := segmentContentType
		if strings.HasSuffix(entry.Name(), ".m3u8") {
			contentType = playlistContentType
		}
		localPath := filepath.Join(outDir, entry.Name())
		if err := t.uploader.UploadFile(ctx, bucket, key, localPath, contentType); err != nil {
			return fmt.Errorf("upload %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (t *Transcoder) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLines(stderr.String(), 3))
	}
	return nil
}

// lastLines keeps the tail of ffmpeg's stderr, which is where the actual
// failure reason lives.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

var _ port.Transcoder = (*Transcoder)(nil)
