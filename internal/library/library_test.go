package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/encoder"
	"streamvio/internal/mediatypes"
)

type fakeProber struct {
	duration float64
	err      error
	calls    int
}

func (f *fakeProber) Probe(_ context.Context, _ string) (*encoder.ProbeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d := f.duration
	return &encoder.ProbeResult{Duration: &d}, nil
}

func setup(t *testing.T, prober Prober) (*Library, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "media")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := database.New(context.Background(), filepath.Join(dir, "library.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, root, prober), root
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegisterAndResolve(t *testing.T) {
	prober := &fakeProber{duration: 100}
	lib, root := setup(t, prober)
	touch(t, filepath.Join(root, "shows", "Pilot.MKV"))

	item, err := lib.Register(context.Background(), "42", "shows/Pilot.MKV")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if item.Type != mediatypes.FileTypeVideo || item.Size != 4 {
		t.Errorf("Unexpected item %+v", item)
	}

	m, err := lib.Resolve(context.Background(), "42", "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Path != filepath.Join(root, "shows", "Pilot.MKV") {
		t.Errorf("path = %s", m.Path)
	}
	if m.Duration == nil || *m.Duration != 100 {
		t.Errorf("Expected probed duration 100, got %v", m.Duration)
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	lib, root := setup(t, nil)
	touch(t, filepath.Join(root, "photo.jpg"))

	item, err := lib.Register(context.Background(), " ", filepath.Join(root, "photo.jpg"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if item.ID == "" || item.Type != mediatypes.FileTypeImage || item.Duration != nil {
		t.Errorf("Unexpected item %+v", item)
	}
}

func TestRegisterSkipsProbeForImagesAndToleratesFailures(t *testing.T) {
	prober := &fakeProber{err: errors.New("ffprobe: invalid data")}
	lib, root := setup(t, prober)
	touch(t, filepath.Join(root, "a.png"))
	touch(t, filepath.Join(root, "b.mp3"))

	if _, err := lib.Register(context.Background(), "img", "a.png"); err != nil {
		t.Fatalf("Register image: %v", err)
	}
	if prober.calls != 0 {
		t.Error("images should not be probed")
	}
	item, err := lib.Register(context.Background(), "song", "b.mp3")
	if err != nil {
		t.Fatalf("Register audio: %v", err)
	}
	if item.Duration != nil {
		t.Error("Expected no duration after a failed probe")
	}
}

func TestRegisterErrors(t *testing.T) {
	lib, root := setup(t, nil)
	touch(t, filepath.Join(root, "notes.txt"))
	outside := filepath.Join(filepath.Dir(root), "outside.mp4")
	touch(t, outside)

	tests := []struct {
		name string
		path string
		code apperr.Code
	}{
		{"outside root", outside, apperr.CodeForbidden},
		{"traversal", "../outside.mp4", apperr.CodeForbidden},
		{"missing", "missing.mp4", apperr.CodeSourceMissing},
		{"directory", ".", apperr.CodeInvalidArgument},
		{"unknown type", "notes.txt", apperr.CodeUnsupportedOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.Register(context.Background(), "x", tt.path)
			if code := apperr.CodeOf(err); code != tt.code {
				t.Errorf("Expected %s, got %s (%v)", tt.code, code, err)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	lib, _ := setup(t, nil)
	if _, err := lib.Resolve(context.Background(), "nope", "alice"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestResolveForbiddenOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "l.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// registered under an older root
	if err := db.UpsertMedia(context.Background(), &database.MediaItem{ID: "old", Path: "/srv/old/clip.mp4", Type: mediatypes.FileTypeVideo}); err != nil {
		t.Fatal(err)
	}
	lib := New(db, filepath.Join(dir, "media"), nil)
	if _, err := lib.Resolve(context.Background(), "old", "alice"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("Expected FORBIDDEN, got %v", err)
	}
}

func TestIsSupportedType(t *testing.T) {
	lib := New(nil, "/media", nil)
	if lib.IsSupportedType(mediatypes.FileTypeImage, mediatypes.OpHLS) {
		t.Error("HLS must not be supported for images")
	}
	if !lib.IsSupportedType(mediatypes.FileTypeVideo, mediatypes.OpStoryboard) {
		t.Error("storyboards are supported for video")
	}
}
