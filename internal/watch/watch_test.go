package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	. "github.com/onsi/gomega"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_BurstYieldsOneRefresh(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	w := newTestWatcher(t)
	g.Expect(w.Watch(dir)).To(Succeed())

	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(dir, "f"+string(rune('a'+i))+".txt"))
	}

	var req RefreshRequest
	g.Eventually(w.Refresh(), 2*time.Second).Should(Receive(&req))
	g.Expect(req.Target).To(Equal(dir))
	g.Expect(req.Reason).To(Equal("watch"))

	created := 0
	for _, ev := range req.Events {
		if ev.Op == Created {
			created++
		}
	}
	g.Expect(created).To(Equal(20))

	g.Consistently(w.Refresh(), 300*time.Millisecond).ShouldNot(Receive())
}

func TestWatcher_RenameIsPaired(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	writeFile(t, oldPath)

	w := newTestWatcher(t)
	g.Expect(w.Watch(dir)).To(Succeed())
	g.Expect(os.Rename(oldPath, newPath)).To(Succeed())

	var req RefreshRequest
	g.Eventually(w.Refresh(), 2*time.Second).Should(Receive(&req))
	g.Expect(req.Events).To(ContainElement(ChangeEvent{Op: Renamed, Path: newPath, OldPath: oldPath}))
}

func TestWatcher_DeleteIsReported(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	victim := filepath.Join(dir, "b.txt")
	writeFile(t, victim)

	w := newTestWatcher(t)
	g.Expect(w.Watch(dir)).To(Succeed())
	g.Expect(os.Remove(victim)).To(Succeed())

	g.Eventually(w.Events(), 2*time.Second).Should(Receive(Equal(ChangeEvent{Op: Deleted, Path: victim})))
	g.Eventually(w.Refresh(), 2*time.Second).Should(Receive())
}

func TestWatcher_SwitchingTargetIgnoresOldDirectory(t *testing.T) {
	g := NewWithT(t)
	first, second := t.TempDir(), t.TempDir()
	w := newTestWatcher(t)

	g.Expect(w.Watch(first)).To(Succeed())
	g.Expect(w.Watch(second)).To(Succeed())
	g.Expect(w.Target()).To(Equal(second))

	writeFile(t, filepath.Join(first, "ignored.txt"))
	g.Consistently(w.Refresh(), 300*time.Millisecond).ShouldNot(Receive())

	writeFile(t, filepath.Join(second, "seen.txt"))
	var req RefreshRequest
	g.Eventually(w.Refresh(), 2*time.Second).Should(Receive(&req))
	g.Expect(req.Target).To(Equal(second))
}

func TestWatcher_VCSSignalIsSeparate(t *testing.T) {
	g := NewWithT(t)
	repo := t.TempDir()
	meta := filepath.Join(repo, ".git")
	g.Expect(os.Mkdir(meta, 0755)).To(Succeed())
	work := filepath.Join(repo, "src")
	g.Expect(os.Mkdir(work, 0755)).To(Succeed())

	w := newTestWatcher(t)
	g.Expect(w.Watch(work)).To(Succeed())
	g.Expect(w.WatchVCS(meta)).To(Succeed())

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(meta, "index"))
	}

	g.Eventually(w.VCSChanged(), 2*time.Second).Should(Receive(Equal(meta)))
	g.Consistently(w.Refresh(), 200*time.Millisecond).ShouldNot(Receive())
	g.Consistently(w.VCSChanged(), 200*time.Millisecond).ShouldNot(Receive())

	g.Expect(w.WatchVCS("")).To(Succeed())
	writeFile(t, filepath.Join(meta, "HEAD"))
	g.Consistently(w.VCSChanged(), 300*time.Millisecond).ShouldNot(Receive())
}

func TestWatcher_WatchMissingDirectoryFails(t *testing.T) {
	w := newTestWatcher(t)
	if err := w.Watch(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error watching a missing directory")
	}
}

func TestDetectVCS(t *testing.T) {
	g := NewWithT(t)

	repo := t.TempDir()
	g.Expect(os.Mkdir(filepath.Join(repo, ".git"), 0755)).To(Succeed())
	nested := filepath.Join(repo, "a", "b")
	g.Expect(os.MkdirAll(nested, 0755)).To(Succeed())

	info, ok := DetectVCS(nested)
	g.Expect(ok).To(BeTrue())
	g.Expect(info.Kind).To(Equal("git"))
	g.Expect(info.Root).To(Equal(repo))
	g.Expect(info.MetaDir).To(Equal(filepath.Join(repo, ".git")))
}

func TestDetectVCS_GitFile(t *testing.T) {
	g := NewWithT(t)

	base := t.TempDir()
	realMeta := filepath.Join(base, "meta", "worktrees", "wt")
	g.Expect(os.MkdirAll(realMeta, 0755)).To(Succeed())
	wt := filepath.Join(base, "wt")
	g.Expect(os.Mkdir(wt, 0755)).To(Succeed())
	g.Expect(os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: ../meta/worktrees/wt\n"), 0644)).To(Succeed())

	info, ok := DetectVCS(wt)
	g.Expect(ok).To(BeTrue())
	g.Expect(info.Root).To(Equal(wt))
	g.Expect(info.MetaDir).To(Equal(realMeta))
}

func TestDetectVCS_BrokenGitFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".git"), []byte("not a gitdir line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if info, ok := gitAt(dir); ok {
		t.Errorf("expected no working tree, got %+v", info)
	}
}

func TestEventBatch_Folding(t *testing.T) {
	testCases := []struct {
		name   string
		raw    []fsnotify.Event
		expect []ChangeEvent
	}{
		{
			name:   "create then write",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Create}, {Name: "/d/a", Op: fsnotify.Write}},
			expect: []ChangeEvent{{Op: Created, Path: "/d/a"}},
		},
		{
			name:   "create then remove",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Create}, {Name: "/d/a", Op: fsnotify.Remove}},
			expect: []ChangeEvent{},
		},
		{
			name:   "remove then create",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Remove}, {Name: "/d/a", Op: fsnotify.Create}},
			expect: []ChangeEvent{{Op: Modified, Path: "/d/a"}},
		},
		{
			name:   "rename pair",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Rename}, {Name: "/d/b", Op: fsnotify.Create}},
			expect: []ChangeEvent{{Op: Renamed, Path: "/d/b", OldPath: "/d/a"}},
		},
		{
			name:   "rename chain",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Rename}, {Name: "/d/b", Op: fsnotify.Create}, {Name: "/d/b", Op: fsnotify.Rename}, {Name: "/d/c", Op: fsnotify.Create}},
			expect: []ChangeEvent{{Op: Renamed, Path: "/d/c", OldPath: "/d/a"}},
		},
		{
			name:   "renamed then removed",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Rename}, {Name: "/d/b", Op: fsnotify.Create}, {Name: "/d/b", Op: fsnotify.Remove}},
			expect: []ChangeEvent{{Op: Deleted, Path: "/d/a"}},
		},
		{
			name:   "moved out",
			raw:    []fsnotify.Event{{Name: "/d/a", Op: fsnotify.Rename}},
			expect: []ChangeEvent{{Op: Deleted, Path: "/d/a"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewWithT(t)
			b := newEventBatch("/d")
			for _, ev := range tc.raw {
				b.add(ev)
			}
			b.flushRenames()
			g.Expect(b.result()).To(Equal(tc.expect))
		})
	}
}

func TestSendRefresh_MergesPending(t *testing.T) {
	g := NewWithT(t)
	w := &Watcher{refresh: make(chan RefreshRequest, 1)}

	w.sendRefresh(RefreshRequest{Target: "/d", Events: []ChangeEvent{{Op: Created, Path: "/d/a"}}})
	w.sendRefresh(RefreshRequest{Target: "/d", Events: []ChangeEvent{{Op: Created, Path: "/d/b"}}})

	var req RefreshRequest
	g.Expect(w.refresh).To(Receive(&req))
	g.Expect(req.Events).To(Equal([]ChangeEvent{{Op: Created, Path: "/d/a"}, {Op: Created, Path: "/d/b"}}))
	g.Expect(w.refresh).NotTo(Receive())
}
