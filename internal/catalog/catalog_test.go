package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/jobs"
	"streamvio/internal/mediatypes"
)

func newTestCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	root := t.TempDir()
	return New(db, root), root
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOutputPath(t *testing.T) {
	l := NewLayout("/cache")

	tests := []struct {
		name       string
		opts       jobs.Options
		sourceType mediatypes.FileType
		expected   string
	}{
		{"transcode video", jobs.TranscodeOptions{Profile: "standard"}, mediatypes.FileTypeVideo, "/cache/transcoded/42/My_Movie-0123abcd.mp4"},
		{"transcode audio", jobs.TranscodeOptions{}, mediatypes.FileTypeAudio, "/cache/transcoded/42/My_Movie-0123abcd.m4a"},
		{"hls", jobs.HLSOptions{}, mediatypes.FileTypeVideo, "/cache/hls/42/My_Movie-0123abcd"},
		{"thumbnail", jobs.ThumbnailOptions{Offset: 12.5}, mediatypes.FileTypeVideo, "/cache/thumbnail/42/My_Movie-t12.5-320x180-0123abcd.jpg"},
		{"thumbnail whole second", jobs.ThumbnailOptions{Offset: 30}, mediatypes.FileTypeVideo, "/cache/thumbnail/42/My_Movie-t30-320x180-0123abcd.jpg"},
		{"storyboard", jobs.StoryboardOptions{Count: 5}, mediatypes.FileTypeVideo, "/cache/storyboard/42/My_Movie-n5-w160-0123abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := jobs.New("42", "/media/films/My Movie.mkv", tt.opts)
			j.ID = "0123abcd-ef01-2345-6789-abcdef012345"
			if got := l.OutputPath(j, tt.sourceType); got != tt.expected {
				t.Errorf("OutputPath = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestOutputPathPartitionsHostileMediaIDs(t *testing.T) {
	l := NewLayout("/cache")
	j := jobs.New("../../etc", "/media/x.mp4", jobs.TranscodeOptions{})
	got := l.OutputPath(j, mediatypes.FileTypeVideo)
	if !strings.HasPrefix(got, "/cache/transcoded/") {
		t.Errorf("Expected output to stay inside the transcoded partition, got %q", got)
	}
	if filepath.Dir(filepath.Dir(got)) != "/cache/transcoded" {
		t.Errorf("Expected media id collapsed into one element, got %q", got)
	}
}

func TestSafeSegment(t *testing.T) {
	tests := map[string]string{
		"movie":        "movie",
		"My Movie (1)": "My_Movie__1_",
		"..":           "_..",
		"":             "_",
		"a/b":          "a_b",
		"clip.v2":      "clip.v2",
	}
	for in, expected := range tests {
		if got := safeSegment(in); got != expected {
			t.Errorf("safeSegment(%q) = %q, expected %q", in, got, expected)
		}
	}
}

func TestVariant(t *testing.T) {
	if v := Variant(jobs.TranscodeOptions{Profile: "high"}.Normalize()); v != "" {
		t.Errorf("Expected empty variant for transcodes, got %q", v)
	}
	if v := Variant(jobs.HLSOptions{MaxHeight: 720}.Normalize()); v != "" {
		t.Errorf("Expected empty variant for hls, got %q", v)
	}
	thumb := jobs.ThumbnailOptions{Offset: 3}.Normalize()
	if v := Variant(thumb); v != thumb.Key() {
		t.Errorf("Expected thumbnail variant to be its key, got %q", v)
	}
}

func TestPutAndGet(t *testing.T) {
	c, root := newTestCatalog(t)
	ctx := context.Background()

	path := filepath.Join(root, "transcoded", "42", "movie.mp4")
	writeFile(t, path, 1234)

	a := &database.Artifact{MediaID: "42", FormatType: database.FormatTranscoded, FilePath: path, MimeType: "video/mp4"}
	if err := c.Put(ctx, a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if a.SizeBytes != 1234 {
		t.Errorf("Expected size filled from disk, got %d", a.SizeBytes)
	}

	got, err := c.Get(ctx, "42", database.FormatTranscoded, "")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FilePath != path {
		t.Errorf("Expected %s, got %s", path, got.FilePath)
	}

	_, err = c.Get(ctx, "42", database.FormatHLS, "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND for missing format, got %v", err)
	}
}

func TestPutSupersedes(t *testing.T) {
	c, root := newTestCatalog(t)
	ctx := context.Background()

	first := filepath.Join(root, "hls", "42", "movie-aaaa", "master.m3u8")
	second := filepath.Join(root, "hls", "42", "movie-bbbb", "master.m3u8")
	writeFile(t, first, 10)
	writeFile(t, filepath.Join(filepath.Dir(first), "v0", "segment_00000.ts"), 100)
	writeFile(t, second, 10)

	for _, p := range []string{first, second} {
		if err := c.Put(ctx, &database.Artifact{MediaID: "42", FormatType: database.FormatHLS, FilePath: p}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := c.Get(ctx, "42", database.FormatHLS, "")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FilePath != second {
		t.Errorf("Expected latest artifact %s, got %s", second, got.FilePath)
	}

	all, err := c.List(ctx, "42", true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 records including superseded, got %d", len(all))
	}
	if all[1].SupersededAt == nil {
		t.Error("Expected the older record to be superseded")
	}
	if all[1].SizeBytes != 110 {
		t.Errorf("Expected directory size 110 for the first ladder, got %d", all[1].SizeBytes)
	}

	// the superseded ladder is left on disk
	if _, err := os.Stat(first); err != nil {
		t.Errorf("Expected superseded files to remain: %v", err)
	}
}

func TestGetStaleArtifactIsNotFound(t *testing.T) {
	c, root := newTestCatalog(t)
	ctx := context.Background()

	path := filepath.Join(root, "thumbnail", "7", "clip-t1-320x180.jpg")
	writeFile(t, path, 50)
	if err := c.Put(ctx, &database.Artifact{MediaID: "7", FormatType: database.FormatThumbnail, Variant: "v", FilePath: path}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(ctx, "7", database.FormatThumbnail, "v"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND for a vanished file, got %v", err)
	}
}

func TestLookupRegenerate(t *testing.T) {
	c, root := newTestCatalog(t)
	ctx := context.Background()

	path := filepath.Join(root, "transcoded", "1", "a.mp4")
	writeFile(t, path, 5)
	if err := c.Put(ctx, &database.Artifact{MediaID: "1", FormatType: database.FormatTranscoded, FilePath: path}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Lookup(ctx, "1", database.FormatTranscoded, "", false); err != nil {
		t.Errorf("Expected hit without regenerate, got %v", err)
	}
	if _, err := c.Lookup(ctx, "1", database.FormatTranscoded, "", true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND with regenerate, got %v", err)
	}
}

func TestSize(t *testing.T) {
	c, root := newTestCatalog(t)
	writeFile(t, filepath.Join(root, "a", "b.bin"), 300)
	writeFile(t, filepath.Join(root, "c.bin"), 200)

	size, err := c.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 500 {
		t.Errorf("Expected 500 bytes, got %d", size)
	}
}
