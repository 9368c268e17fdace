// Package extractor implements the §6 Extractor collaborator: given a
// completed download's file path, it extracts supported archive formats
// into the download's directory. Grounded on
// original_source/server/core/extractor.py's extract_file, including its
// exact supported-extension set (the spec.md table in §6 omits .rar,
// which the original supports; SPEC_FULL.md's DOMAIN STACK restores it).
package extractor

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"

	"corefetch/internal/model"
	"corefetch/internal/segment"
)

// Extractor dispatches to a format-specific unpack routine by extension.
// The zero value is ready to use.
type Extractor struct{}

// New builds an Extractor.
func New() *Extractor { return &Extractor{} }

var _ segment.Extractor = (*Extractor)(nil)

// supportedExts mirrors extract_file's format table exactly, including
// the two-part ".tar.gz" suffix.
var supportedExts = []string{".zip", ".tar", ".tar.gz", ".tgz", ".7z", ".rar"}

// Supports reports whether filename carries one of the recognized
// archive extensions.
func (e *Extractor) Supports(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range supportedExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Extract unpacks archivePath into destDir. It returns model.ErrExtraction
// (wrapped) on any failure, including an unsupported extension — callers
// should check Supports first and set extraction_skipped rather than
// calling Extract on an unsupported file.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) error {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return e.extractZip(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return e.extractTarGz(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar"):
		return e.extractTar(archivePath, destDir)
	case strings.HasSuffix(lower, ".7z"):
		return e.extract7z(archivePath, destDir)
	case strings.HasSuffix(lower, ".rar"):
		return e.extractRar(archivePath, destDir)
	default:
		return fmt.Errorf("extract %s: unsupported format: %w", archivePath, model.ErrExtraction)
	}
}

// safeJoin rejects a member path that would escape destDir via "..",
// guarding against a malicious archive (zip-slip).
func safeJoin(destDir, member string) (string, error) {
	target := filepath.Join(destDir, member)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return "", fmt.Errorf("extract: illegal path %q escapes destination: %w", member, model.ErrExtraction)
	}
	return target, nil
}

func (e *Extractor) extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w: %w", model.ErrExtraction, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractZipEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, destDir string) error {
	target, err := safeJoin(destDir, f.Name)
	if err != nil {
		return err
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract zip: %w: %w", model.ErrExtraction, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("extract zip: %w: %w", model.ErrExtraction, err)
	}
	defer rc.Close()
	return writeFile(target, rc, f.Mode())
}

func (e *Extractor) extractTar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open tar: %w: %w", model.ErrExtraction, err)
	}
	defer f.Close()
	return extractTarStream(tar.NewReader(f), destDir)
}

func (e *Extractor) extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open tar.gz: %w: %w", model.ErrExtraction, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open tar.gz: %w: %w", model.ErrExtraction, err)
	}
	defer gz.Close()
	return extractTarStream(tar.NewReader(gz), destDir)
}

func extractTarStream(tr *tar.Reader, destDir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w: %w", model.ErrExtraction, err)
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract tar: %w: %w", model.ErrExtraction, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extract tar: %w: %w", model.ErrExtraction, err)
			}
			if err := writeFile(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		}
	}
}

func (e *Extractor) extract7z(archivePath, destDir string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open 7z: %w: %w", model.ErrExtraction, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract 7z: %w: %w", model.ErrExtraction, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("extract 7z: %w: %w", model.ErrExtraction, err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("extract 7z: %w: %w", model.ErrExtraction, err)
		}
		err = writeFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) extractRar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open rar: %w: %w", model.ErrExtraction, err)
	}
	defer f.Close()

	r, err := rardecode.NewReader(f)
	if err != nil {
		return fmt.Errorf("open rar: %w: %w", model.ErrExtraction, err)
	}

	for {
		hdr, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rar entry: %w: %w", model.ErrExtraction, err)
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if hdr.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract rar: %w: %w", model.ErrExtraction, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("extract rar: %w: %w", model.ErrExtraction, err)
		}
		if err := writeFile(target, r, 0o644); err != nil {
			return err
		}
	}
}

func writeFile(target string, src io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("extract: %w: %w", model.ErrExtraction, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("extract: %w: %w", model.ErrExtraction, err)
	}
	return nil
}
