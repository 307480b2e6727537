package index

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/patto/internal/notify"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/workspace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRepo(t *testing.T) *workspace.Repository {
	t.Helper()
	store, err := storage.NewFS(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	broker := notify.NewBroker(64, time.Hour)
	t.Cleanup(broker.Close)
	return workspace.New(store, workspace.WithLogger(quietLogger()), workspace.WithBroker(broker))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSyncMirrorsRepository(t *testing.T) {
	db := testDB(t)
	repo := testRepo(t)
	a := repo.URIFor("a.pn")
	if _, err := repo.Upsert(a, "[b] and [c#x]\nship it !2025-03-01\n"); err != nil {
		t.Fatal(err)
	}
	_ = db.UpsertNote(note("file:///elsewhere/stale.pn", "stale", "s"), "", nil, nil)

	if err := Sync(db, repo, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	doc, _ := repo.Get(a)
	if cs, _ := db.GetChecksum(a); cs != doc.Checksum {
		t.Errorf("checksum = %q, want %q", cs, doc.Checksum)
	}
	if cs, _ := db.GetChecksum("file:///elsewhere/stale.pn"); cs != "" {
		t.Error("stale row not removed")
	}
	if bl, _ := db.Backlinks("c"); len(bl) != 1 || bl[0] != a {
		t.Errorf("backlinks(c) = %v", bl)
	}
	tasks, _ := db.Tasks("todo")
	if len(tasks) != 1 || tasks[0].Text != "ship it" || tasks[0].Due != "2025-03-01" || !tasks[0].Dated {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestFollowAppliesEvents(t *testing.T) {
	db := testDB(t)
	repo := testRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, db, repo, quietLogger()) }()
	time.Sleep(50 * time.Millisecond)

	uri := repo.URIFor("live.pn")
	if _, err := repo.Upsert(uri, "followed [target]\n"); err != nil {
		t.Fatal(err)
	}
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		bl, _ := db.Backlinks("target")
		return len(bl) == 1
	}, "upsert not mirrored")

	repo.Remove(uri)
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(uri)
		return cs == ""
	}, "remove not mirrored")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not stop")
	}
}
