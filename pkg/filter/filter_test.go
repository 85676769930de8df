package filter

import "testing"

func TestVerdict_Order(t *testing.T) {
	f := New()
	f.AddIgnoredDir("/media/private")
	f.AddMustNotContain("thumbs")
	f.AddDontRecurseBeyond("/media/flat")

	tests := []struct {
		path string
		want Verdict
	}{
		{"/media/private", Prune},
		{"/media/private/", Prune},
		{"/media/thumbs", Skip},
		{"/media/flat", AdmitAndPrune},
		{"/media/other", Admit},
		// ignored dirs match exactly, not by prefix
		{"/media/private/thumbs", Skip},
	}
	for _, tt := range tests {
		if got := f.Verdict(tt.path); got != tt.want {
			t.Errorf("Verdict(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestVerdict_MustContain(t *testing.T) {
	f := New()
	f.AddMustContain("cats")
	if got := f.Verdict("/pics/dogs"); got != Skip {
		t.Errorf("expected Skip without keyword, got %v", got)
	}
	if got := f.Verdict("/pics/cats"); got != Admit {
		t.Errorf("expected Admit with keyword, got %v", got)
	}
}

func TestVerdict_IgnoreBelowBottom(t *testing.T) {
	f := New()
	lowest := 3
	f.ConfigureIgnoreBelowBottom(true, &lowest)
	if got := f.Verdict("/a/b"); got != Skip {
		t.Errorf("expected Skip above floor, got %v", got)
	}
	if got := f.Verdict("/a/b/c"); got != Admit {
		t.Errorf("expected Admit at floor, got %v", got)
	}
	f.ConfigureIgnoreBelowBottom(false, &lowest)
	if got := f.Verdict("/a"); got != Admit {
		t.Errorf("expected Admit when disabled, got %v", got)
	}
}

func TestVerdict_ProcessDescend(t *testing.T) {
	tests := []struct {
		v                Verdict
		process, descend bool
	}{
		{Admit, true, true},
		{Prune, false, false},
		{Skip, false, true},
		{AdmitAndPrune, true, false},
	}
	for _, tt := range tests {
		if tt.v.Process() != tt.process || tt.v.Descend() != tt.descend {
			t.Errorf("%v: process=%v descend=%v", tt.v, tt.v.Process(), tt.v.Descend())
		}
	}
}

func TestZeroValueAdmitsEverything(t *testing.T) {
	var f Filter
	if got := f.Verdict("/anything"); got != Admit {
		t.Errorf("expected Admit, got %v", got)
	}
	if f.IgnoresFile("/anything/a.jpg") {
		t.Error("zero filter should not ignore files")
	}
	if !f.Empty() {
		t.Error("zero filter should be empty")
	}
}

func TestCloneIsSnapshot(t *testing.T) {
	f := New()
	f.AddIgnoredFile("/a/skip.jpg")
	snap := f.Clone()
	f.AddMustContain("later")
	f.AddIgnoredFile("/a/other.jpg")

	if len(snap.MustContain) != 0 {
		t.Error("snapshot picked up later keyword")
	}
	if snap.IgnoresFile("/a/other.jpg") {
		t.Error("snapshot picked up later ignored file")
	}
	if !snap.IgnoresFile("/a/skip.jpg") {
		t.Error("snapshot lost earlier ignored file")
	}
}
