package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "widget.json")

	if err := WriteJSONAtomic(path, widget{Name: "a", Count: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got widget
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != (widget{Name: "a", Count: 1}) {
		t.Fatalf("got %+v", got)
	}
}

func TestWriteJSONAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.json")

	if err := WriteJSONAtomic(path, widget{Name: "a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteJSONAtomic(path, widget{Name: "b"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

func TestWriteJSONAtomic_WritesBackupOfPriorContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.json")

	if err := WriteJSONAtomic(path, widget{Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSONAtomic(path, widget{Name: "second"}); err != nil {
		t.Fatal(err)
	}

	var bak widget
	if err := ReadJSON(path+".bak", &bak); err != nil {
		t.Fatalf("reading .bak: %v", err)
	}
	if bak.Name != "first" {
		t.Fatalf(".bak contains %q, want the pre-update value %q", bak.Name, "first")
	}
}

func TestReadJSONOrEmpty_MissingFileLeavesValueUntouched(t *testing.T) {
	got := widget{Name: "untouched"}
	ReadJSONOrEmpty(filepath.Join(t.TempDir(), "missing.json"), &got)
	if got.Name != "untouched" {
		t.Fatalf("expected zero-effect on missing file, got %+v", got)
	}
}

func TestWriteJSONAtomic_ConcurrentWritesNeverCorruptReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.json")
	if err := WriteJSONAtomic(path, widget{Name: "seed"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = WriteJSONAtomic(path, widget{Name: "w", Count: n})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			var v widget
			if err := ReadJSON(path, &v); err != nil {
				t.Errorf("reader observed a broken file: %v", err)
				return
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done
}
