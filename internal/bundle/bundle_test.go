package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
	return dir
}

func TestCreate(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"application.py":                "import flask\n",
		"requirements.txt":              "flask==2.3.2\n",
		"static/css/site.css":           "body {}\n",
		"static/js/app.js":              "console.log('hi')\n",
		"__pycache__/application.pyc":   "bytecode",
		"static/__pycache__/cached.pyc": "bytecode",
		".ebextensions/options.config":  "option_settings: {}\n",
		"scratch.pyc":                   "bytecode",
	})

	var buf bytes.Buffer
	manifest, err := Create(context.Background(), &buf, Options{
		SourceDir: dir,
		Exclude:   []string{"__pycache__", "*.pyc"},
	})
	if err != nil {
		t.Fatalf("failed to create bundle: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}

	want := []string{
		".ebextensions/options.config",
		"application.py",
		"requirements.txt",
		"static/css/site.css",
		"static/js/app.js",
	}
	if len(zr.File) != len(want) {
		t.Fatalf("got %d entries; want %d", len(zr.File), len(want))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("entry %d: got %q; want %q", i, f.Name, want[i])
		}
	}

	if manifest.Files != len(want) {
		t.Errorf("got %d files; want %d", manifest.Files, len(want))
	}

	var wantBytes int64
	for _, name := range want {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("failed to stat %s: %v", name, err)
		}
		wantBytes += info.Size()
	}
	if manifest.Bytes != wantBytes {
		t.Errorf("got %d bytes; want %d", manifest.Bytes, wantBytes)
	}

	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("failed to open entry: %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read entry: %v", err)
	}
	if string(body) != "import flask\n" {
		t.Errorf("got %q; want %q", body, "import flask\n")
	}
}

func TestCreate_PreservesMode(t *testing.T) {
	dir := writeTree(t, map[string]string{"bin/run.sh": "#!/bin/sh\n"})
	if err := os.Chmod(filepath.Join(dir, "bin", "run.sh"), 0o755); err != nil {
		t.Fatalf("failed to chmod: %v", err)
	}

	var buf bytes.Buffer
	if _, err := Create(context.Background(), &buf, Options{SourceDir: dir}); err != nil {
		t.Fatalf("failed to create bundle: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("got %d entries; want 1", len(zr.File))
	}
	if mode := zr.File[0].Mode(); mode&0o111 == 0 {
		t.Errorf("got mode %v; want executable bit set", mode)
	}
}

func TestCreate_SkipsSymlinks(t *testing.T) {
	dir := writeTree(t, map[string]string{"application.py": "handler\n"})
	if err := os.Symlink("application.py", filepath.Join(dir, "link.py")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	var buf bytes.Buffer
	manifest, err := Create(context.Background(), &buf, Options{SourceDir: dir})
	if err != nil {
		t.Fatalf("failed to create bundle: %v", err)
	}
	if manifest.Files != 1 {
		t.Errorf("got %d files; want 1", manifest.Files)
	}
}

func TestCreate_MissingSource(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Create(context.Background(), &buf, Options{SourceDir: "/no/such/dir"}); err == nil {
		t.Errorf("expected error for missing source directory")
	}
}

func TestCreate_SourceIsFile(t *testing.T) {
	dir := writeTree(t, map[string]string{"application.py": "handler\n"})

	var buf bytes.Buffer
	if _, err := Create(context.Background(), &buf, Options{SourceDir: filepath.Join(dir, "application.py")}); err == nil {
		t.Errorf("expected error for non-directory source")
	}
}

func TestCreate_Cancelled(t *testing.T) {
	dir := writeTree(t, map[string]string{"application.py": "handler\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if _, err := Create(ctx, &buf, Options{SourceDir: dir}); err == nil {
		t.Errorf("expected error for cancelled context")
	}
}

func TestExcluded(t *testing.T) {
	testCases := map[string]struct {
		name     string
		patterns []string
		want     bool
	}{
		"base name":        {name: "app/__pycache__", patterns: []string{"__pycache__"}, want: true},
		"glob on base":     {name: "static/js/app.min.js", patterns: []string{"*.min.js"}, want: true},
		"path pattern":     {name: "static/tmp/upload.bin", patterns: []string{"static/tmp/*"}, want: true},
		"no match":         {name: "static/js/app.js", patterns: []string{"*.css"}, want: false},
		"no patterns":      {name: "application.py", patterns: nil, want: false},
		"nested dir match": {name: "a/b/node_modules", patterns: []string{"node_modules"}, want: true},
	}

	for label, tc := range testCases {
		t.Run(label, func(t *testing.T) {
			if got := excluded(tc.name, tc.patterns); got != tc.want {
				t.Errorf("got %v; want %v", got, tc.want)
			}
		})
	}
}
