// Package schema defines the transcript and summary artifact contracts and
// validates them strictly. Non-conforming model output is rejected, never
// coerced into shape.
package schema

import (
	"encoding/json"
	"fmt"
)

type Transcript struct {
	RecordingId     string              `json:"recording_id"`
	GeneratedAt     string              `json:"generated_at"`
	Segments        []TranscriptSegment `json:"segments"`
	PipelineVersion string              `json:"pipeline_version"`
	ModelVersion    string              `json:"model_version"`
}

type TranscriptSegment struct {
	Id           string       `json:"id"`
	StartMs      int64        `json:"start_ms"`
	EndMs        int64        `json:"end_ms"`
	SpeakerLabel string       `json:"speaker_label"`
	Text         string       `json:"text"`
	Words        []WordTiming `json:"words,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty"`
}

type WordTiming struct {
	Word       string   `json:"word"`
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func ParseTranscript(raw []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("transcript is not valid JSON: %w", err)
	}
	if err := ValidateTranscript(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func ValidateTranscript(t *Transcript) error {
	if t.RecordingId == "" {
		return fmt.Errorf("transcript missing recording_id")
	}
	if t.GeneratedAt == "" {
		return fmt.Errorf("transcript missing generated_at")
	}
	if t.PipelineVersion == "" {
		return fmt.Errorf("transcript missing pipeline_version")
	}
	if t.ModelVersion == "" {
		return fmt.Errorf("transcript missing model_version")
	}
	for i, seg := range t.Segments {
		if seg.Id == "" {
			return fmt.Errorf("segment %d missing id", i)
		}
		if seg.SpeakerLabel == "" {
			return fmt.Errorf("segment %s missing speaker_label", seg.Id)
		}
		if seg.Text == "" {
			return fmt.Errorf("segment %s missing text", seg.Id)
		}
		if seg.StartMs < 0 || seg.EndMs < seg.StartMs {
			return fmt.Errorf("segment %s has invalid time range [%d, %d]", seg.Id, seg.StartMs, seg.EndMs)
		}
		if seg.Confidence != nil && (*seg.Confidence < 0 || *seg.Confidence > 1) {
			return fmt.Errorf("segment %s confidence %f out of range", seg.Id, *seg.Confidence)
		}
		for _, w := range seg.Words {
			if w.Confidence != nil && (*w.Confidence < 0 || *w.Confidence > 1) {
				return fmt.Errorf("segment %s word %q confidence out of range", seg.Id, w.Word)
			}
		}
	}
	return nil
}

// PlainText joins segment texts for the summarization prompt.
func (t *Transcript) PlainText() string {
	var out string
	for i, seg := range t.Segments {
		if i > 0 {
			out += "\n"
		}
		out += seg.SpeakerLabel + ": " + seg.Text
	}
	return out
}
