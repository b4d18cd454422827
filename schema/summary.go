package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

type Summary struct {
	RecordingId     string     `json:"recording_id"`
	GeneratedAt     string     `json:"generated_at"`
	GenerationId    string     `json:"generation_id,omitempty"`
	SummaryText     string     `json:"summary_text"`
	Actions         []Action   `json:"actions"`
	Decisions       []Decision `json:"decisions"`
	KeyTopics       []string   `json:"key_topics,omitempty"`
	Participants    []string   `json:"participants,omitempty"`
	PipelineVersion string     `json:"pipeline_version"`
	ModelVersion    string     `json:"model_version"`
}

type Action struct {
	Id                string   `json:"id"`
	Description       string   `json:"description"`
	Owner             string   `json:"owner,omitempty"`
	DueDate           *string  `json:"due_date,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	SourceTimestampMs *int64   `json:"source_timestamp_ms,omitempty"`
}

type Decision struct {
	Id                string   `json:"id"`
	Decision          string   `json:"decision"`
	Confidence        *float64 `json:"confidence,omitempty"`
	SourceTimestampMs *int64   `json:"source_timestamp_ms,omitempty"`
}

// ParseSummary decodes raw model output and stamps the required metadata.
// Any structural violation fails the parse; partial summaries are never
// repaired or written.
func ParseSummary(raw []byte, recordingId, pipelineVersion, modelVersion, generationId string) (*Summary, error) {
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}

	s.RecordingId = recordingId
	s.PipelineVersion = pipelineVersion
	s.ModelVersion = modelVersion
	s.GenerationId = generationId
	s.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	if err := ValidateSummary(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func ValidateSummary(s *Summary) error {
	if s.RecordingId == "" {
		return fmt.Errorf("summary missing recording_id")
	}
	if s.GeneratedAt == "" {
		return fmt.Errorf("summary missing generated_at")
	}
	if s.SummaryText == "" {
		return fmt.Errorf("summary missing summary_text")
	}
	if s.Actions == nil {
		return fmt.Errorf("summary missing actions")
	}
	if s.Decisions == nil {
		return fmt.Errorf("summary missing decisions")
	}
	if s.PipelineVersion == "" {
		return fmt.Errorf("summary missing pipeline_version")
	}
	if s.ModelVersion == "" {
		return fmt.Errorf("summary missing model_version")
	}
	for i, a := range s.Actions {
		if a.Id == "" || a.Description == "" {
			return fmt.Errorf("action %d missing id or description", i)
		}
		if a.DueDate != nil {
			if _, err := time.Parse("2006-01-02", *a.DueDate); err != nil {
				return fmt.Errorf("action %s has invalid due_date %q", a.Id, *a.DueDate)
			}
		}
		if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
			return fmt.Errorf("action %s confidence %f out of range", a.Id, *a.Confidence)
		}
		if a.SourceTimestampMs != nil && *a.SourceTimestampMs < 0 {
			return fmt.Errorf("action %s has negative source_timestamp_ms", a.Id)
		}
	}
	for i, d := range s.Decisions {
		if d.Id == "" || d.Decision == "" {
			return fmt.Errorf("decision %d missing id or decision", i)
		}
		if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
			return fmt.Errorf("decision %s confidence %f out of range", d.Id, *d.Confidence)
		}
		if d.SourceTimestampMs != nil && *d.SourceTimestampMs < 0 {
			return fmt.Errorf("decision %s has negative source_timestamp_ms", d.Id)
		}
	}
	return nil
}
