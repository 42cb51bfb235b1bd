package order

import (
	"math/rand"
	"testing"
	"time"

	"github.com/justyntemme/razorlist/internal/model"
)

func file(name string, size int64, mod time.Time) *model.Item {
	return model.NewItem("/d/"+name, model.KindFile, model.Props{Name: name, Size: size, SizeKnown: true, ModifiedAt: mod, CreatedAt: mod})
}

func dir(name string) *model.Item {
	return model.NewItem("/d/"+name, model.KindDirectory, model.Props{Name: name})
}

func namesOf(items []*model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name()
	}
	return out
}

func assertOrder(t *testing.T, label string, got []*model.Item, want ...string) {
	t.Helper()
	names := namesOf(got)
	if len(names) != len(want) {
		t.Fatalf("%s: expected %v, got %v", label, want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("%s: expected %v, got %v", label, want, names)
		}
	}
}

func TestSort_NameAscending(t *testing.T) {
	items := []*model.Item{file("b.txt", 0, time.Time{}), file("a.txt", 0, time.Time{})}
	assertOrder(t, "default", Sort(items, Options{}), "a.txt", "b.txt")
}

func TestSort_CaseInsensitive(t *testing.T) {
	items := []*model.Item{file("beta", 0, time.Time{}), file("Alpha", 0, time.Time{}), file("alpha2", 0, time.Time{})}
	assertOrder(t, "case", Sort(items, Options{}), "Alpha", "alpha2", "beta")
}

func TestSort_Keys(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*model.Item{
		file("c.go", 300, t0.Add(time.Hour)),
		file("a.txt", 100, t0.Add(3*time.Hour)),
		file("b.go", 200, t0),
	}

	assertOrder(t, "modified", Sort(items, Options{Key: ByDateModified}), "b.go", "c.go", "a.txt")
	assertOrder(t, "created desc", Sort(items, Options{Key: ByDateCreated, Descending: true}), "a.txt", "c.go", "b.go")
	assertOrder(t, "size", Sort(items, Options{Key: BySize}), "a.txt", "b.go", "c.go")
	assertOrder(t, "type", Sort(items, Options{Key: ByType}), "b.go", "c.go", "a.txt")
	assertOrder(t, "name desc", Sort(items, Options{Descending: true}), "c.go", "b.go", "a.txt")
}

func TestSort_DirectoriesFirst(t *testing.T) {
	items := []*model.Item{file("a.txt", 1, time.Time{}), dir("zeta"), file("b.txt", 1, time.Time{}), dir("alpha")}

	assertOrder(t, "grouped", Sort(items, Options{DirectoriesFirst: true}), "alpha", "zeta", "a.txt", "b.txt")
	assertOrder(t, "grouped desc", Sort(items, Options{DirectoriesFirst: true, Descending: true}), "zeta", "alpha", "b.txt", "a.txt")
	assertOrder(t, "mixed", Sort(items, Options{}), "a.txt", "alpha", "b.txt", "zeta")
}

func TestSort_TiesFallBackToName(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	x, y, z := file("x", 10, same), file("Y", 10, same), file("z", 10, same)

	for _, in := range [][]*model.Item{{x, y, z}, {z, y, x}, {y, z, x}} {
		assertOrder(t, "size", Sort(in, Options{Key: BySize}), "x", "Y", "z")
		assertOrder(t, "size desc", Sort(in, Options{Key: BySize, Descending: true}), "x", "Y", "z")
		assertOrder(t, "modified", Sort(in, Options{Key: ByDateModified}), "x", "Y", "z")
	}
}

func TestSort_SameNameFallsBackToPath(t *testing.T) {
	a := model.NewItem("/d/a/readme", model.KindFile, model.Props{Name: "readme"})
	b := model.NewItem("/d/b/README", model.KindFile, model.Props{Name: "README"})

	for _, in := range [][]*model.Item{{a, b}, {b, a}} {
		got := Sort(in, Options{})
		if got[0] != a || got[1] != b {
			t.Fatalf("expected path order, got %s, %s", got[0].Path, got[1].Path)
		}
	}
}

func TestSort_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	var items []*model.Item
	for i := 0; i < 200; i++ {
		name := string(rune('a'+r.Intn(26))) + string(rune('a'+r.Intn(26)))
		items = append(items, model.NewItem("/d/"+name+string(rune('0'+i%10)), model.KindFile, model.Props{Name: name, Size: int64(r.Intn(5))}))
	}

	for _, opts := range []Options{{}, {Key: BySize}, {Key: BySize, Descending: true}, {Key: ByType, DirectoriesFirst: true}} {
		once := Sort(items, opts)
		twice := Sort(once, opts)
		for i := range once {
			if once[i] != twice[i] {
				t.Fatalf("%+v: re-sorting changed position %d", opts, i)
			}
		}
	}
}

func TestSort_ReturnsNewSlice(t *testing.T) {
	items := []*model.Item{file("b", 0, time.Time{}), file("a", 0, time.Time{})}
	_ = Sort(items, Options{})
	if items[0].Name() != "b" {
		t.Error("Sort must not reorder its input")
	}
}

func TestParseKey(t *testing.T) {
	for _, k := range []Key{ByName, ByDateModified, ByDateCreated, BySize, ByType} {
		got, err := ParseKey(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKey(%q): expected %v, got %v (%v)", k.String(), k, got, err)
		}
	}
	if _, err := ParseKey("colour"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}
