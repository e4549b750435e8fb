// Package bundle packages a source directory into the zip archive that gets
// registered as an application version.
package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

// Options controls what goes into the archive.
type Options struct {
	SourceDir string   // Directory whose contents become the archive root
	Exclude   []string // Globs matched against entry base names and archive paths
}

// Manifest summarizes what was packaged.
type Manifest struct {
	Files int   // Regular files written to the archive
	Bytes int64 // Total uncompressed payload size
}

// Create walks SourceDir and writes a zip archive to w. Entry names are
// forward-slash paths relative to SourceDir, in lexical order so the same
// tree always produces the same member list. Directories are implied by
// member paths; symlinks and other non-regular files are skipped.
func Create(ctx context.Context, w io.Writer, opts Options) (*Manifest, error) {
	info, err := os.Stat(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", opts.SourceDir)
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	manifest := &Manifest{}
	err = filepath.WalkDir(opts.SourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(opts.SourceDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		if excluded(name, opts.Exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		return addFile(zw, p, name, d, manifest)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", opts.SourceDir, err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return manifest, nil
}

func addFile(zw *zip.Writer, p, name string, d fs.DirEntry, manifest *Manifest) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}

	src, err := os.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("failed to compress %s: %w", name, err)
	}

	manifest.Files++
	manifest.Bytes += n
	return nil
}

// excluded matches patterns against both the entry's base name (so
// "__pycache__" prunes the directory at any depth) and its archive path
// (so "static/tmp/*" works too).
func excluded(name string, patterns []string) bool {
	base := path.Base(name)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
