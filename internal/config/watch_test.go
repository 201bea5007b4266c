package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchSurvivesAtomicSave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.toml")
	write := func(target, projectID string) {
		t.Helper()
		body := "[project]\nid = \"" + projectID + "\"\n\n[[monitor]]\nid = \"job\"\nperiod_sec = 60\n"
		if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", target, err)
		}
	}
	write(path, "before")

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan Config, 4)
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})
	go func() {
		defer close(done)
		logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
		if err := Watch(ctx, path, logger, func(cfg Config) { reloads <- cfg }); err != nil {
			t.Errorf("watch: %v", err)
		}
	}()
	// Give the watcher a moment to establish before replacing the file.
	time.Sleep(100 * time.Millisecond)

	// An atomic save replaces the watched inode: write a sibling and rename
	// it over the path, which surfaces only as rename/remove on the watch.
	staging := filepath.Join(dir, "vigil.toml.tmp")
	write(staging, "after")
	if err := os.Rename(staging, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case cfg := <-reloads:
		if cfg.Project.ID != "after" {
			t.Fatalf("reloaded project = %q, want post-save snapshot", cfg.Project.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after atomic save replaced the file")
	}

	// The re-established watch must still see plain writes.
	write(path, "third")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloads:
			if cfg.Project.ID == "third" {
				return
			}
		case <-deadline:
			t.Fatal("no reload after write to the replacement file")
		}
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(payload []byte) (int, error) {
	w.t.Log(string(payload))
	return len(payload), nil
}
