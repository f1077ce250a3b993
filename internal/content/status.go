package content

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusValidated        Status = "validated"
	StatusRejected         Status = "rejected"
	StatusQueued           Status = "queued"
	StatusProcessing       Status = "processing"
	StatusScriptGenerating Status = "script_generating"
	StatusScriptGenerated  Status = "script_generated"
	StatusScriptAdapting   Status = "script_adapting"
	StatusScriptAdapted    Status = "script_adapted"
	StatusAudioGenerating  Status = "audio_generating"
	StatusAudioGenerated   Status = "audio_generated"
	StatusVideoGenerating  Status = "video_generating"
	StatusVideoGenerated   Status = "video_generated"
	StatusUploaded         Status = "uploaded"
	StatusError            Status = "error"
)

var ErrInvalidTransition = errors.New("invalid item status transition")

// Entering queued or processing from a resting or error state starts a new run.
// Within a run statuses only move forward along the pipeline, or to error.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusValidated: true,
		StatusRejected:  true,
	},
	StatusValidated: {
		StatusQueued:   true,
		StatusRejected: true,
	},
	StatusQueued: {
		StatusProcessing: true,
		StatusError:      true,
		// cancellation rolls back to the resting point of the previous run
		StatusValidated:       true,
		StatusScriptGenerated: true,
		StatusScriptAdapted:   true,
		StatusAudioGenerated:  true,
		// a job for an already rendered item completes without running stages
		StatusVideoGenerated: true,
	},
	StatusProcessing: {
		StatusScriptGenerating: true,
		StatusScriptAdapting:   true,
		StatusAudioGenerating:  true,
		StatusVideoGenerating:  true,
		StatusError:            true,
	},
	StatusScriptGenerating: {
		StatusScriptGenerated: true,
		StatusError:           true,
	},
	StatusScriptGenerated: {
		StatusScriptAdapting: true,
		StatusQueued:         true,
		StatusError:          true,
	},
	StatusScriptAdapting: {
		StatusScriptAdapted: true,
		StatusError:         true,
	},
	StatusScriptAdapted: {
		StatusAudioGenerating: true,
		StatusQueued:          true,
		StatusError:           true,
	},
	StatusAudioGenerating: {
		StatusAudioGenerated: true,
		StatusError:          true,
	},
	StatusAudioGenerated: {
		StatusVideoGenerating: true,
		StatusQueued:          true,
		StatusError:           true,
	},
	StatusVideoGenerating: {
		StatusVideoGenerated: true,
		StatusError:          true,
	},
	StatusVideoGenerated: {
		StatusUploaded: true,
		StatusQueued:   true,
	},
	StatusError: {
		StatusQueued:     true,
		StatusProcessing: true,
	},
	StatusUploaded: {},
	StatusRejected: {},
}

func IsKnownStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	return nil
}

// pipelineRank orders the statuses a single run passes through.
var pipelineRank = map[Status]int{
	StatusQueued:           1,
	StatusProcessing:       2,
	StatusScriptGenerating: 3,
	StatusScriptGenerated:  4,
	StatusScriptAdapting:   5,
	StatusScriptAdapted:    6,
	StatusAudioGenerating:  7,
	StatusAudioGenerated:   8,
	StatusVideoGenerating:  9,
	StatusVideoGenerated:   10,
	StatusUploaded:         11,
}

// Rank returns the position of s in the pipeline order, 0 for statuses
// outside it (pending, validated, rejected, error).
func Rank(s Status) int {
	return pipelineRank[s]
}

var progress = map[Status]int{
	StatusProcessing:       5,
	StatusScriptGenerating: 10,
	StatusScriptGenerated:  25,
	StatusScriptAdapting:   35,
	StatusScriptAdapted:    50,
	StatusAudioGenerating:  60,
	StatusAudioGenerated:   75,
	StatusVideoGenerating:  85,
	StatusVideoGenerated:   100,
	StatusUploaded:         100,
}

var stepLabels = map[Status]string{
	StatusQueued:           "waiting in queue",
	StatusProcessing:       "starting",
	StatusScriptGenerating: "writing script",
	StatusScriptGenerated:  "script ready",
	StatusScriptAdapting:   "adapting script for narration",
	StatusScriptAdapted:    "narration script ready",
	StatusAudioGenerating:  "synthesizing narration",
	StatusAudioGenerated:   "narration ready",
	StatusVideoGenerating:  "rendering video",
	StatusVideoGenerated:   "video ready",
	StatusUploaded:         "published",
}

// Progress returns the percentage shown for s and whether s carries one.
// Statuses without a value (error, queued) keep the previous percentage.
func Progress(s Status) (int, bool) {
	p, ok := progress[s]
	return p, ok
}

func StepLabel(s Status) string {
	return stepLabels[s]
}

type Stage string

const (
	StageScript Stage = "script"
	StageAdapt  Stage = "adapt"
	StageAudio  Stage = "audio"
	StageVideo  Stage = "video"
)

var Stages = []Stage{StageScript, StageAdapt, StageAudio, StageVideo}

var stageStatuses = map[Stage][2]Status{
	StageScript: {StatusScriptGenerating, StatusScriptGenerated},
	StageAdapt:  {StatusScriptAdapting, StatusScriptAdapted},
	StageAudio:  {StatusAudioGenerating, StatusAudioGenerated},
	StageVideo:  {StatusVideoGenerating, StatusVideoGenerated},
}

func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if _, ok := stageStatuses[st]; !ok {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

func (s Stage) Generating() Status { return stageStatuses[s][0] }
func (s Stage) Generated() Status  { return stageStatuses[s][1] }

var resumeFrom = map[Status]Stage{
	"":                    StageScript,
	StatusScriptGenerated: StageAdapt,
	StatusScriptAdapted:   StageAudio,
	StatusAudioGenerated:  StageVideo,
}

// NextStage maps the last completed step to the stage to run next.
// ok is false when every stage has already completed.
func NextStage(lastSuccessful Status) (stage Stage, ok bool) {
	if lastSuccessful == StatusVideoGenerated {
		return "", false
	}
	if st, found := resumeFrom[lastSuccessful]; found {
		return st, true
	}
	// unknown anchors restart the pipeline
	return StageScript, true
}

// RemainingStages lists the stages still to run, in order.
func RemainingStages(lastSuccessful Status) []Stage {
	next, ok := NextStage(lastSuccessful)
	if !ok {
		return nil
	}
	for i, st := range Stages {
		if st == next {
			return append([]Stage(nil), Stages[i:]...)
		}
	}
	return nil
}
