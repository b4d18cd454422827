// Package google adapts Google Cloud Speech-to-Text to the transcribe.Client
// contract. Jobs are long-running recognize operations; the operation name is
// the job handle, so any worker can resume polling after a delay.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"worker-pipeline/schema"
	"worker-pipeline/storage"
	"worker-pipeline/transcribe"
)

type Config struct {
	LanguageCode    string
	MaxSpeakers     int
	SampleRateHertz int
	ModelVersion    string
	PipelineVersion string
	CredentialsFile string
}

type adapter struct {
	client *speech.Client
	store  storage.ObjectStore
	cfg    Config
}

func New(ctx context.Context, store storage.ObjectStore, cfg Config) (transcribe.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.MaxSpeakers == 0 {
		cfg.MaxSpeakers = 10
	}
	if cfg.SampleRateHertz == 0 {
		cfg.SampleRateHertz = 16000
	}
	return &adapter{client: client, store: store, cfg: cfg}, nil
}

func (a *adapter) Start(ctx context.Context, in transcribe.StartInput) (string, error) {
	audio, err := a.store.Get(ctx, in.AudioKey)
	if err != nil {
		return "", fmt.Errorf("failed to read audio %s: %w", in.AudioKey, err)
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(a.cfg.SampleRateHertz),
			AudioChannelCount:          1,
			LanguageCode:               a.cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
				EnableSpeakerDiarization: true,
				MinSpeakerCount:          1,
				MaxSpeakerCount:          int32(a.cfg.MaxSpeakers),
			},
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	op, err := a.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to start recognition: %w", err)
	}
	return op.Name(), nil
}

func (a *adapter) Poll(ctx context.Context, jobName string, in transcribe.StartInput) (transcribe.PollResult, error) {
	op := a.client.LongRunningRecognizeOperation(jobName)

	resp, err := op.Poll(ctx)
	if err != nil {
		return transcribe.PollResult{Status: transcribe.StatusFailed, FailureReason: err.Error()}, nil
	}
	if !op.Done() {
		return transcribe.PollResult{Status: transcribe.StatusRunning}, nil
	}

	artifact := a.buildTranscript(resp, in.SessionId)
	raw, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return transcribe.PollResult{}, err
	}
	if err := a.store.Put(ctx, in.TranscriptKey, raw, "application/json"); err != nil {
		return transcribe.PollResult{}, fmt.Errorf("failed to write transcript: %w", err)
	}

	return transcribe.PollResult{Status: transcribe.StatusCompleted, TranscriptKey: in.TranscriptKey}, nil
}

func (a *adapter) buildTranscript(resp *speechpb.LongRunningRecognizeResponse, sessionId string) *schema.Transcript {
	t := &schema.Transcript{
		RecordingId:     sessionId,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		PipelineVersion: a.cfg.PipelineVersion,
		ModelVersion:    a.cfg.ModelVersion,
	}

	var offsetMs int64
	for i, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		alt := result.GetAlternatives()[0]
		if alt.GetTranscript() == "" {
			continue
		}

		seg := schema.TranscriptSegment{
			Id:           fmt.Sprintf("seg_%03d", i),
			SpeakerLabel: speakerLabelFor(alt.GetWords()),
			Text:         alt.GetTranscript(),
			StartMs:      offsetMs,
			EndMs:        result.GetResultEndTime().AsDuration().Milliseconds(),
		}
		if conf := float64(alt.GetConfidence()); conf > 0 {
			seg.Confidence = &conf
		}
		for _, w := range alt.GetWords() {
			seg.Words = append(seg.Words, schema.WordTiming{
				Word:    w.GetWord(),
				StartMs: w.GetStartTime().AsDuration().Milliseconds(),
				EndMs:   w.GetEndTime().AsDuration().Milliseconds(),
			})
		}
		if len(seg.Words) > 0 {
			seg.StartMs = seg.Words[0].StartMs
			seg.EndMs = seg.Words[len(seg.Words)-1].EndMs
		}
		offsetMs = seg.EndMs
		t.Segments = append(t.Segments, seg)
	}
	return t
}

func speakerLabelFor(words []*speechpb.WordInfo) string {
	for _, w := range words {
		if w.GetSpeakerTag() > 0 {
			return fmt.Sprintf("spk_%d", w.GetSpeakerTag())
		}
	}
	return "spk_0"
}
