package mdimg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// makeTree creates files (relative paths) under a fresh temp dir and returns
// the root together with the sorted absolute paths of the files.
func makeTree(t *testing.T, files ...string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	var want []string
	for _, rel := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		want = append(want, path)
	}
	sort.Strings(want)
	return root, want
}

func quiet() Options {
	return Options{Logger: zap.NewNop()}
}

// TestCollect tests that every file below root is returned and no directory is
func TestCollect(t *testing.T) {
	root, want := makeTree(t,
		"index.md",
		"a/index.md",
		"a/b/c/image.png",
		"a/b/notes.txt",
		"d/index.md",
	)
	if err := os.MkdirAll(filepath.Join(root, "empty", "nested"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	res, err := Collect(context.Background(), root, quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if got := res.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected files %v, got %v", want, got)
	}
	if len(res.Inaccessible) != 0 || len(res.Errors) != 0 {
		t.Errorf("Expected no inaccessible entries or errors, got %v / %v", res.Inaccessible, res.Errors)
	}
}

// TestCollectRelativeRoot tests that results are absolute even for a relative root
func TestCollectRelativeRoot(t *testing.T) {
	root, want := makeTree(t, "x/index.md")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	rel, err := filepath.Rel(wd, root)
	if err != nil {
		t.Skipf("temp dir not relative to working dir: %v", err)
	}

	res, err := Collect(context.Background(), rel, quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := res.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected files %v, got %v", want, got)
	}
}

// TestCollectEmptyDirectory tests walking an empty directory
func TestCollectEmptyDirectory(t *testing.T) {
	res, err := Collect(context.Background(), t.TempDir(), quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(res.Files) != 0 {
		t.Errorf("Expected no files, got %v", res.Files)
	}
}

// TestCollectNonExistentDirectory tests that an unlistable root is an error
func TestCollectNonExistentDirectory(t *testing.T) {
	_, err := Collect(context.Background(), "/path/that/does/not/exist", quiet())
	if err == nil {
		t.Fatal("Expected error for non-existent directory, got nil")
	}
	var le *ListError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *ListError, got %T: %v", err, err)
	}
	if le.Path != "/path/that/does/not/exist" {
		t.Errorf("Expected error path to be the root, got %s", le.Path)
	}
}

// TestCollectRootIsFile tests that passing a file as root is reported
func TestCollectRootIsFile(t *testing.T) {
	_, files := makeTree(t, "index.md")
	if _, err := Collect(context.Background(), files[0], quiet()); err == nil {
		t.Error("Expected error when root is a file, got nil")
	}
}

// TestCollectCompletesOnce tests N files and M subdirectories at one level
func TestCollectCompletesOnce(t *testing.T) {
	var files []string
	for i := 0; i < 40; i++ {
		files = append(files, fmt.Sprintf("f%02d.md", i))
		files = append(files, fmt.Sprintf("d%02d/index.md", i))
	}
	root, want := makeTree(t, files...)

	var (
		mu    sync.Mutex
		calls []Stats
	)
	opts := quiet()
	opts.Workers = 3
	opts.Progress = func(s Stats) {
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
	}

	res, err := Collect(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := res.Sorted(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %d files, got %d", len(want), len(got))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) == 0 {
		t.Fatal("Expected at least the final progress update")
	}
	last := calls[len(calls)-1]
	if last.FilesFound != int64(len(want)) {
		t.Errorf("Expected %d files found, got %d", len(want), last.FilesFound)
	}
	if last.DirsWalked != 41 {
		t.Errorf("Expected 41 directories walked, got %d", last.DirsWalked)
	}
	if last.ElapsedTime <= 0 {
		t.Errorf("Expected positive elapsed time, got %v", last.ElapsedTime)
	}
}

// TestCollectErrorHandling tests the three modes against an unreadable subdirectory
func TestCollectErrorHandling(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root, _ := makeTree(t, "ok/index.md", "locked/index.md")
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0000); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })
	okFile := filepath.Join(root, "ok", "index.md")

	t.Run("continue", func(t *testing.T) {
		opts := quiet()
		opts.ErrorHandling = ErrorHandlingContinue
		res, err := Collect(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if !reflect.DeepEqual(res.Files, []string{okFile}) {
			t.Errorf("Expected %v, got %v", []string{okFile}, res.Files)
		}
		var le *ListError
		if !errors.As(res.Err(), &le) || le.Path != locked {
			t.Errorf("Expected ListError for %s, got %v", locked, res.Err())
		}
	})

	t.Run("skip", func(t *testing.T) {
		opts := quiet()
		opts.ErrorHandling = ErrorHandlingSkip
		res, err := Collect(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if !reflect.DeepEqual(res.Files, []string{okFile}) {
			t.Errorf("Expected %v, got %v", []string{okFile}, res.Files)
		}
		if res.Err() != nil {
			t.Errorf("Expected no recorded errors, got %v", res.Err())
		}
	})

	t.Run("stop", func(t *testing.T) {
		opts := quiet()
		opts.ErrorHandling = ErrorHandlingStop
		_, err := Collect(context.Background(), root, opts)
		var le *ListError
		if !errors.As(err, &le) {
			t.Fatalf("Expected *ListError, got %v", err)
		}
	})
}

// TestCollectListFailure tests the three modes against a directory whose
// listing fails, independent of permission bits
func TestCollectListFailure(t *testing.T) {
	root, _ := makeTree(t, "ok/index.md", "broken/index.md", "broken/deeper/index.md")
	broken := filepath.Join(root, "broken")
	okFile := filepath.Join(root, "ok", "index.md")
	errListing := errors.New("listing failed")

	orig := readDirnames
	readDirnames = func(dir string, scratch []byte) ([]string, error) {
		if filepath.Base(dir) == "broken" {
			return nil, errListing
		}
		return orig(dir, scratch)
	}
	t.Cleanup(func() { readDirnames = orig })

	t.Run("continue", func(t *testing.T) {
		opts := quiet()
		opts.ErrorHandling = ErrorHandlingContinue
		res, err := Collect(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if !reflect.DeepEqual(res.Files, []string{okFile}) {
			t.Errorf("Expected %v, got %v", []string{okFile}, res.Files)
		}
		var le *ListError
		if !errors.As(res.Err(), &le) || le.Path != broken {
			t.Errorf("Expected ListError for %s, got %v", broken, res.Err())
		}
		if !errors.Is(res.Err(), errListing) {
			t.Errorf("Expected wrapped listing error, got %v", res.Err())
		}
	})

	t.Run("skip", func(t *testing.T) {
		opts := quiet()
		opts.ErrorHandling = ErrorHandlingSkip
		res, err := Collect(context.Background(), root, opts)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if !reflect.DeepEqual(res.Files, []string{okFile}) {
			t.Errorf("Expected %v, got %v", []string{okFile}, res.Files)
		}
		if res.Err() != nil {
			t.Errorf("Expected no recorded errors, got %v", res.Err())
		}
	})

	t.Run("stop", func(t *testing.T) {
		opts := quiet()
		opts.ErrorHandling = ErrorHandlingStop
		_, err := Collect(context.Background(), root, opts)
		if err == nil {
			t.Fatal("Expected an error")
		}
	})
}

// TestCollectDanglingSymlink tests that a vanished target is not reported as a file
func TestCollectDanglingSymlink(t *testing.T) {
	root, want := makeTree(t, "index.md")
	dangling := filepath.Join(root, "gone.md")
	if err := os.Symlink(filepath.Join(root, "missing"), dangling); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	res, err := Collect(context.Background(), root, quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := res.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if len(res.Inaccessible) != 1 || res.Inaccessible[0].Path != dangling {
		t.Fatalf("Expected %s to be inaccessible, got %v", dangling, res.Inaccessible)
	}
	if res.Inaccessible[0].Kind != KindInaccessible || res.Inaccessible[0].Err == nil {
		t.Errorf("Expected inaccessible kind with an error, got %+v", res.Inaccessible[0])
	}
}

// TestCollectSymlinkCycle tests that a link back to an ancestor terminates
func TestCollectSymlinkCycle(t *testing.T) {
	root, want := makeTree(t, "a/index.md")
	if err := os.Symlink(root, filepath.Join(root, "a", "loop")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	res, err := Collect(context.Background(), root, quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := res.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestCollectSymlinkAlias tests that a link to a non-ancestor directory lists
// both the directory and the link
func TestCollectSymlinkAlias(t *testing.T) {
	root, _ := makeTree(t, "real/index.md")
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	want := []string{
		filepath.Join(root, "alias", "index.md"),
		filepath.Join(root, "real", "index.md"),
	}

	for i := 0; i < 50; i++ {
		res, err := Collect(context.Background(), root, quiet())
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if got := res.Sorted(); !reflect.DeepEqual(got, want) {
			t.Fatalf("Run %d: expected %v, got %v", i, want, got)
		}
	}
}

// TestCollectSymlinkHandling tests following and ignoring linked files
func TestCollectSymlinkHandling(t *testing.T) {
	root, files := makeTree(t, "target/index.md")
	link := filepath.Join(root, "link.md")
	if err := os.Symlink(files[0], link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	opts := quiet()
	res, err := Collect(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(res.Files) != 2 {
		t.Errorf("Expected link to be followed, got %v", res.Files)
	}

	opts.SymlinkHandling = SymlinkIgnore
	res, err = Collect(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !reflect.DeepEqual(res.Files, files) {
		t.Errorf("Expected link to be ignored, got %v", res.Files)
	}
}

// TestCollectExclusions tests ExcludeDir and SkipHidden
func TestCollectExclusions(t *testing.T) {
	root, _ := makeTree(t,
		"docs/index.md",
		"node_modules/pkg/index.md",
		".git/index.md",
		".hidden.md",
	)

	opts := quiet()
	opts.ExcludeDir = []string{"node_*"}
	opts.SkipHidden = true
	res, err := Collect(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	want := []string{filepath.Join(root, "docs", "index.md")}
	if !reflect.DeepEqual(res.Files, want) {
		t.Errorf("Expected %v, got %v", want, res.Files)
	}
}

// TestCollectCanceled tests that a canceled context is reported
func TestCollectCanceled(t *testing.T) {
	root, _ := makeTree(t, "a/index.md", "b/index.md")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, root, quiet())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestCollectIdempotent tests that two walks of an unchanged tree agree
func TestCollectIdempotent(t *testing.T) {
	root, _ := makeTree(t, "a/index.md", "a/b/index.md", "c.png")

	first, err := Collect(context.Background(), root, quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	second, err := Collect(context.Background(), root, quiet())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !reflect.DeepEqual(first.Sorted(), second.Sorted()) {
		t.Errorf("Expected identical results, got %v and %v", first.Sorted(), second.Sorted())
	}
}

func TestParseErrorHandling(t *testing.T) {
	tests := []struct {
		in   string
		want ErrorHandling
		ok   bool
	}{
		{"", ErrorHandlingContinue, true},
		{"continue", ErrorHandlingContinue, true},
		{"STOP", ErrorHandlingStop, true},
		{" skip ", ErrorHandlingSkip, true},
		{"abort", ErrorHandlingContinue, false},
	}
	for _, tt := range tests {
		got, ok := ParseErrorHandling(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseErrorHandling(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if ok && got.String() != "continue" && got.String() != "stop" && got.String() != "skip" {
			t.Errorf("unexpected String() %q", got.String())
		}
	}
}
