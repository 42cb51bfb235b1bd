package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/justyntemme/razorlist/internal/order"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "views.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSortRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetSort(ctx, "/home/u/photos"); err != nil || ok {
		t.Fatalf("GetSort on empty db = %v, %v", ok, err)
	}

	want := order.Options{Key: order.ByDateModified, Descending: true, DirectoriesFirst: false}
	if err := db.SetSort(ctx, "/home/u/photos/", want); err != nil {
		t.Fatalf("SetSort: %v", err)
	}

	got, ok, err := db.GetSort(ctx, "/home/u/photos")
	if err != nil || !ok {
		t.Fatalf("GetSort = %v, %v", ok, err)
	}
	if got != want {
		t.Errorf("GetSort = %+v, want %+v", got, want)
	}

	want.Key = order.BySize
	want.Descending = false
	if err := db.SetSort(ctx, "/home/u/photos", want); err != nil {
		t.Fatalf("SetSort update: %v", err)
	}
	got, _, _ = db.GetSort(ctx, "/home/u/photos")
	if got != want {
		t.Errorf("after update GetSort = %+v, want %+v", got, want)
	}
}

func TestForgetAndFolders(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, f := range []string{"/a", "/b", "/c"} {
		if err := db.SetSort(ctx, f, order.Options{Key: order.ByName}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.ForgetSort(ctx, "/b"); err != nil {
		t.Fatal(err)
	}

	folders, err := db.Folders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 2 {
		t.Fatalf("Folders = %v, want 2 entries", folders)
	}
	for _, f := range folders {
		if f == "/b" {
			t.Errorf("forgotten folder still listed: %v", folders)
		}
	}
}

func TestReopenKeepsSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetSort(ctx, "/x", order.Options{Key: order.ByType, DirectoriesFirst: true}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, ok, err := db.GetSort(ctx, "/x")
	if err != nil || !ok || got.Key != order.ByType || !got.DirectoriesFirst {
		t.Errorf("GetSort after reopen = %+v, %v, %v", got, ok, err)
	}
}
