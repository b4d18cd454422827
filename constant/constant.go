package constant

// SessionStatus is the catalog-visible lifecycle status of a recording session.
type SessionStatus string

const (
	SessionStatusUploading    SessionStatus = "uploading"
	SessionStatusIncomplete   SessionStatus = "incomplete"
	SessionStatusReady        SessionStatus = "ready"
	SessionStatusValidating   SessionStatus = "validating"
	SessionStatusTranscoding  SessionStatus = "transcoding"
	SessionStatusTranscribing SessionStatus = "transcribing"
	SessionStatusSummarizing  SessionStatus = "summarizing"
	SessionStatusFinalizing   SessionStatus = "finalizing"
	SessionStatusCompleted    SessionStatus = "completed"
	SessionStatusFailed       SessionStatus = "failed"
)

func (s SessionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition may leave this status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

type ValidationState string

const (
	ValidationStateValidated ValidationState = "validated"
	ValidationStateRejected  ValidationState = "rejected"
)

// ArtifactKind names an entry in the session's derived-artifact map.
type ArtifactKind string

const (
	ArtifactVideo      ArtifactKind = "video"
	ArtifactAudio      ArtifactKind = "audio"
	ArtifactTranscript ArtifactKind = "transcript"
	ArtifactSummary    ArtifactKind = "summary"
)

func (a ArtifactKind) String() string {
	return string(a)
}

// Stage identifies one step of the processing state machine.
type Stage string

const (
	StageValidating            Stage = "VALIDATING"
	StageTranscoding           Stage = "TRANSCODING"
	StageAwaitingTranscription Stage = "AWAITING_TRANSCRIPTION"
	StageSummarizing           Stage = "SUMMARIZING"
	StageFinalizing            Stage = "FINALIZING"
	StageCompleted             Stage = "COMPLETED"
	StageFailed                Stage = "FAILED"
)

func (s Stage) String() string {
	return string(s)
}

func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
