package jobs

import (
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	tr := TranscodeOptions{Profile: "  Standard "}.Normalize().(TranscodeOptions)
	if tr.Profile != "standard" {
		t.Errorf("Expected profile standard, got %q", tr.Profile)
	}
	if empty := (TranscodeOptions{}).Normalize().(TranscodeOptions); empty.Profile != DefaultProfile {
		t.Errorf("Expected default profile, got %q", empty.Profile)
	}

	sb := StoryboardOptions{}.Normalize().(StoryboardOptions)
	if sb.Count != DefaultStoryboardCount {
		t.Errorf("Expected count %d, got %d", DefaultStoryboardCount, sb.Count)
	}
	if large := (StoryboardOptions{Count: 10000}).Normalize().(StoryboardOptions); large.Count != 10000 {
		t.Errorf("Expected normalization to keep the requested count, got %d", large.Count)
	}

	th := ThumbnailOptions{Offset: -4}.Normalize().(ThumbnailOptions)
	if th.Offset != 0 || th.Width != DefaultThumbnailWidth || th.Height != DefaultThumbnailHeight {
		t.Errorf("Unexpected thumbnail defaults: %+v", th)
	}
}

func TestDedupeKeyEquivalence(t *testing.T) {
	a := TranscodeOptions{Profile: "STANDARD"}.Normalize()
	b := TranscodeOptions{Profile: "standard"}.Normalize()
	c := TranscodeOptions{Profile: "high"}.Normalize()

	if DedupeKey("42", a) != DedupeKey("42", b) {
		t.Error("Expected equivalent options to share a key")
	}
	if DedupeKey("42", a) == DedupeKey("42", c) {
		t.Error("Expected different profiles to have different keys")
	}
	if DedupeKey("42", a) == DedupeKey("43", a) {
		t.Error("Expected different media to have different keys")
	}

	t1 := ThumbnailOptions{Offset: 12.0004}.Normalize()
	t2 := ThumbnailOptions{Offset: 12}.Normalize()
	if DedupeKey("1", t1) != DedupeKey("1", t2) {
		t.Error("Expected sub-millisecond offsets to collapse to one key")
	}
}

func TestOptionsRoundTripThroughStorage(t *testing.T) {
	inputs := []Options{
		TranscodeOptions{Profile: "high", Height: 720},
		HLSOptions{MaxHeight: 1080},
		ThumbnailOptions{Offset: 3.5, Width: 640, Height: 360},
		StoryboardOptions{Count: 5, Width: 160},
	}
	for _, in := range inputs {
		data, err := EncodeOptions(in)
		if err != nil {
			t.Fatalf("EncodeOptions(%T) failed: %v", in, err)
		}
		out, err := DecodeOptions(in.Kind(), data)
		if err != nil {
			t.Fatalf("DecodeOptions(%s) failed: %v", in.Kind(), err)
		}
		if out != in {
			t.Errorf("Expected %+v, got %+v", in, out)
		}
	}

	if _, err := DecodeOptions(Kind("bogus"), "{}"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{StatePending, StateProcessing, true},
		{StatePending, StateCancelled, true},
		{StateProcessing, StateCompleted, true},
		{StateProcessing, StateCancelled, true},
		{StateCompleted, StateFailed, false},
		{StateCancelled, StateProcessing, false},
		{StatePending, StateCompleted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, expected %v", tt.from, tt.to, got, tt.allowed)
		}
	}
	if !StateCancelled.Terminal() || StateProcessing.Terminal() {
		t.Error("Unexpected Terminal() results")
	}
}

func TestNewJob(t *testing.T) {
	job := New("42", "/media/movie.mkv", TranscodeOptions{Profile: "Standard"})

	if job.ID == "" {
		t.Error("Expected job id to be set")
	}
	if job.State != StatePending || job.Kind != KindTranscode {
		t.Errorf("Unexpected job state/kind: %s/%s", job.State, job.Kind)
	}
	if job.Progress != ProgressUnknown {
		t.Errorf("Expected unknown progress, got %v", job.Progress)
	}
	if job.Key != DedupeKey("42", TranscodeOptions{Profile: "standard"}.Normalize()) {
		t.Errorf("Unexpected key %q", job.Key)
	}

	clone := job.Clone()
	clone.AddNote("first")
	clone.AddNote("second")
	if job.Notes != "" {
		t.Error("Expected clone mutation not to affect original")
	}
	if clone.Notes != "first; second" {
		t.Errorf("Unexpected notes %q", clone.Notes)
	}
}
