// Package pipeline drives a completed session through the processing state
// machine: Validating, Transcoding, AwaitingTranscription, Summarizing,
// Finalizing. Execution is resumable: every step is one consumed message, and
// the transcription wait is a delayed re-delivery, never an in-process sleep.
package pipeline

import "worker-pipeline/constant"

// transitions is the success/failure graph. Failed is reachable from every
// non-terminal stage; AwaitingTranscription re-enters itself while the job
// runs.
var transitions = map[constant.Stage][]constant.Stage{
	constant.StageValidating:            {constant.StageTranscoding, constant.StageFailed},
	constant.StageTranscoding:           {constant.StageAwaitingTranscription, constant.StageFailed},
	constant.StageAwaitingTranscription: {constant.StageAwaitingTranscription, constant.StageSummarizing, constant.StageFailed},
	constant.StageSummarizing:           {constant.StageFinalizing, constant.StageFailed},
	constant.StageFinalizing:            {constant.StageCompleted, constant.StageFailed},
	constant.StageCompleted:             {},
	constant.StageFailed:                {},
}

func CanTransition(from, to constant.Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStage returns the success transition out of a stage.
func NextStage(s constant.Stage) constant.Stage {
	switch s {
	case constant.StageValidating:
		return constant.StageTranscoding
	case constant.StageTranscoding:
		return constant.StageAwaitingTranscription
	case constant.StageAwaitingTranscription:
		return constant.StageSummarizing
	case constant.StageSummarizing:
		return constant.StageFinalizing
	case constant.StageFinalizing:
		return constant.StageCompleted
	default:
		return s
	}
}

// StatusFor maps a stage to the catalog status an external observer sees
// while the stage runs.
func StatusFor(s constant.Stage) constant.SessionStatus {
	switch s {
	case constant.StageValidating:
		return constant.SessionStatusValidating
	case constant.StageTranscoding:
		return constant.SessionStatusTranscoding
	case constant.StageAwaitingTranscription:
		return constant.SessionStatusTranscribing
	case constant.StageSummarizing:
		return constant.SessionStatusSummarizing
	case constant.StageFinalizing:
		return constant.SessionStatusFinalizing
	case constant.StageCompleted:
		return constant.SessionStatusCompleted
	default:
		return constant.SessionStatusFailed
	}
}

// EntryFrom is the status set a stage's entry CAS may move from: the previous
// stage's status plus the stage's own, so retries and poll re-entries apply
// cleanly while anything else loses the race.
func EntryFrom(s constant.Stage) []constant.SessionStatus {
	switch s {
	case constant.StageValidating:
		return []constant.SessionStatus{constant.SessionStatusReady, constant.SessionStatusValidating}
	case constant.StageTranscoding:
		return []constant.SessionStatus{constant.SessionStatusValidating, constant.SessionStatusTranscoding}
	case constant.StageAwaitingTranscription:
		return []constant.SessionStatus{constant.SessionStatusTranscoding, constant.SessionStatusTranscribing}
	case constant.StageSummarizing:
		return []constant.SessionStatus{constant.SessionStatusTranscribing, constant.SessionStatusSummarizing}
	case constant.StageFinalizing:
		return []constant.SessionStatus{constant.SessionStatusSummarizing, constant.SessionStatusFinalizing}
	default:
		return nil
	}
}
