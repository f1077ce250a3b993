package content

import "testing"

func TestNextStage_ResumesAfterLastSuccessfulStep(t *testing.T) {
	cases := []struct {
		last Status
		want Stage
		ok   bool
	}{
		{"", StageScript, true},
		{StatusScriptGenerated, StageAdapt, true},
		{StatusScriptAdapted, StageAudio, true},
		{StatusAudioGenerated, StageVideo, true},
		{StatusVideoGenerated, "", false},
	}
	for _, tc := range cases {
		got, ok := NextStage(tc.last)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NextStage(%q) = %q,%v want %q,%v", tc.last, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRemainingStages(t *testing.T) {
	got := RemainingStages(StatusAudioGenerated)
	if len(got) != 1 || got[0] != StageVideo {
		t.Fatalf("unexpected stages: %v", got)
	}
	if got := RemainingStages(""); len(got) != 4 {
		t.Fatalf("expected all stages, got %v", got)
	}
	if got := RemainingStages(StatusVideoGenerated); len(got) != 0 {
		t.Fatalf("expected nothing left, got %v", got)
	}
}

func TestCanTransition_PipelineOrder(t *testing.T) {
	path := []Status{
		StatusQueued, StatusProcessing,
		StatusScriptGenerating, StatusScriptGenerated,
		StatusScriptAdapting, StatusScriptAdapted,
		StatusAudioGenerating, StatusAudioGenerated,
		StatusVideoGenerating, StatusVideoGenerated,
		StatusUploaded,
	}
	if !CanTransition(StatusValidated, StatusQueued) {
		t.Fatalf("validated -> queued must be allowed")
	}
	for i := 0; i+1 < len(path); i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestCanTransition_NoBackwardWithinRun(t *testing.T) {
	// generating and processing states only move forward or to error
	running := []Status{
		StatusProcessing,
		StatusScriptGenerating, StatusScriptAdapting,
		StatusAudioGenerating, StatusVideoGenerating,
	}
	for _, from := range running {
		for to := range allowedTransitions[from] {
			if to == StatusError {
				continue
			}
			if Rank(to) <= Rank(from) {
				t.Fatalf("backward transition allowed: %s -> %s", from, to)
			}
		}
	}
}

func TestCanTransition_Rejections(t *testing.T) {
	bad := [][2]Status{
		{StatusPending, StatusQueued},
		{StatusUploaded, StatusQueued},
		{StatusRejected, StatusValidated},
		{StatusQueued, StatusRejected},
		{StatusScriptGenerating, StatusAudioGenerating},
		{StatusVideoGenerated, StatusError},
		{"bogus", StatusQueued},
	}
	for _, b := range bad {
		if CanTransition(b[0], b[1]) {
			t.Fatalf("expected %s -> %s to be rejected", b[0], b[1])
		}
	}
}

func TestParseStage(t *testing.T) {
	for _, s := range []string{"script", "adapt", "audio", "video"} {
		if _, err := ParseStage(s); err != nil {
			t.Fatalf("ParseStage(%q): %v", s, err)
		}
	}
	if _, err := ParseStage("upload"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
	if StageAudio.Generating() != StatusAudioGenerating || StageAudio.Generated() != StatusAudioGenerated {
		t.Fatalf("audio stage statuses wrong")
	}
}
