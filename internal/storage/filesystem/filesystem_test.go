package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kk-code-lab/tierstore/internal/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestUploadFetchDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	payload := []byte("object payload")

	if err := b.Upload(ctx, "payments-0/seg.log", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rc, err := b.Fetch(ctx, "payments-0/seg.log")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("fetched %q", got)
	}

	if err := b.Delete(ctx, "payments-0/seg.log"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Fetch(ctx, "payments-0/seg.log"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("got %v, want ErrKeyNotFound", err)
	}
	// Deleting a missing object is not an error.
	if err := b.Delete(ctx, "payments-0/seg.log"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestFetchRange(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	payload := []byte("0123456789")
	if err := b.Upload(ctx, "seg.log", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	cases := []struct {
		name     string
		from, to int64
		want     string
		err      bool
	}{
		{name: "middle", from: 2, to: 5, want: "2345"},
		{name: "full", from: 0, to: 9, want: "0123456789"},
		{name: "clamped", from: 8, to: 100, want: "89"},
		{name: "single", from: 4, to: 4, want: "4"},
		{name: "negative-start", from: -1, to: 3, err: true},
		{name: "inverted", from: 5, to: 4, err: true},
		{name: "beyond-object", from: 10, to: 12, err: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc, err := b.FetchRange(ctx, "seg.log", tc.from, tc.to)
			if tc.err {
				if err == nil {
					rc.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchRange: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("range = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUploadLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Upload(context.Background(), "a/b/seg.log", strings.NewReader("data")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".upload-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	b := newTestBackend(t)
	for _, key := range []string{"", "../escape", "a/../../escape"} {
		if err := b.Upload(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("Upload accepted key %q", key)
		}
		if _, err := b.Fetch(context.Background(), key); err == nil {
			t.Fatalf("Fetch accepted key %q", key)
		}
	}
}
