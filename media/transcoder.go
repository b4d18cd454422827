// Package media concatenates uploaded chunks into the final recording and
// extracts the audio track used for transcription.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"worker-pipeline/storage"
)

type Request struct {
	TenantId  string
	SessionId string
	// ChunkRefs are object keys ordered by chunk index.
	ChunkRefs []string
}

type Result struct {
	VideoKey string
	AudioKey string
}

// Transcoder is the black-box media worker: a list of segment references in,
// a concatenated recording plus an extracted audio track out.
type Transcoder interface {
	Process(ctx context.Context, req Request) (Result, error)
}

type ffmpegTranscoder struct {
	store   storage.ObjectStore
	workDir string
}

func NewFFmpegTranscoder(store storage.ObjectStore, workDir string) Transcoder {
	if workDir == "" {
		workDir = "temp"
	}
	return &ffmpegTranscoder{store: store, workDir: workDir}
}

func (t *ffmpegTranscoder) Process(ctx context.Context, req Request) (Result, error) {
	if len(req.ChunkRefs) == 0 {
		return Result{}, fmt.Errorf("no chunks to process for session %s", req.SessionId)
	}

	tempDir := filepath.Join(t.workDir, req.SessionId)
	defer os.RemoveAll(tempDir)

	chunksDir := filepath.Join(tempDir, "chunks")
	outputDir := filepath.Join(tempDir, "output")
	if err := os.MkdirAll(chunksDir, os.ModePerm); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return Result{}, err
	}

	chunkPaths, err := t.downloadChunks(ctx, req.ChunkRefs, chunksDir)
	if err != nil {
		return Result{}, err
	}

	videoPath := filepath.Join(outputDir, "recording.mp4")
	if err := concatChunks(ctx, chunkPaths, videoPath); err != nil {
		return Result{}, err
	}

	audioPath := filepath.Join(outputDir, "audio.wav")
	if err := extractAudio(ctx, videoPath, audioPath); err != nil {
		return Result{}, err
	}

	videoKey := storage.VideoKey(req.TenantId, req.SessionId)
	audioKey := storage.AudioKey(req.TenantId, req.SessionId)

	if err := t.store.Upload(ctx, videoPath, videoKey, "video/mp4"); err != nil {
		return Result{}, fmt.Errorf("failed to upload recording: %w", err)
	}
	if err := t.store.Upload(ctx, audioPath, audioKey, "audio/wav"); err != nil {
		return Result{}, fmt.Errorf("failed to upload audio track: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", req.SessionId).
		Int("chunk_count", len(chunkPaths)).
		Str("video_key", videoKey).
		Str("audio_key", audioKey).
		Msg("chunks concatenated and audio extracted")

	return Result{VideoKey: videoKey, AudioKey: audioKey}, nil
}

func (t *ffmpegTranscoder) downloadChunks(ctx context.Context, refs []string, localDir string) ([]string, error) {
	paths := make([]string, 0, len(refs))
	for i, ref := range refs {
		localPath := filepath.Join(localDir, fmt.Sprintf("chunk-%03d.mp4", i))
		if err := t.store.Download(ctx, ref, localPath); err != nil {
			return nil, fmt.Errorf("failed to download chunk %s: %w", ref, err)
		}
		paths = append(paths, localPath)
	}
	return paths, nil
}

func concatChunks(ctx context.Context, chunkPaths []string, outputPath string) error {
	concatFilePath := filepath.Join(filepath.Dir(outputPath), "concat_list.txt")
	defer os.Remove(concatFilePath)

	var concat strings.Builder
	for _, p := range chunkPaths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		escaped := strings.ReplaceAll(absPath, "'", "'\\''")
		concat.WriteString(fmt.Sprintf("file '%s'\n", escaped))
	}
	if err := os.WriteFile(concatFilePath, []byte(concat.String()), 0644); err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFilePath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("ffmpeg_output", string(output)).Msg("chunk concatenation failed")
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}
	return nil
}

// extractAudio produces 16 kHz mono PCM, the sample rate the recognizer
// expects for speech.
func extractAudio(ctx context.Context, videoPath, audioPath string) error {
	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		audioPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("ffmpeg_output", string(output)).Msg("audio extraction failed")
		return fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}
	return nil
}
