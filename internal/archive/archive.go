package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/randalmurphal/gh-backup/internal/errors"
)

// Format selects the compression applied to the export tarball.
type Format string

const (
	FormatZst Format = "zst"
	FormatGz  Format = "gz"
	FormatXz  Format = "xz"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatZst:
		return FormatZst, nil
	case FormatGz:
		return FormatGz, nil
	case FormatXz:
		return FormatXz, nil
	default:
		return "", fmt.Errorf("unknown archive format %q (want zst, gz, or xz)", s)
	}
}

// Suffix returns the archive file suffix for the format, e.g. ".tar.zst".
func (f Format) Suffix() string {
	return ".tar." + string(f)
}

// Options controls archive creation.
type Options struct {
	Format Format
	// KeepPartial leaves a half-written archive on disk after a failure
	// instead of deleting it.
	KeepPartial bool
}

// Compress streams srcDir into a compressed tarball at outPath. Entries
// are stored relative to srcDir's parent, so extraction recreates the
// export directory by name. The source tree is never modified.
//
// On any error the partial archive is removed unless opts.KeepPartial is
// set. Cancellation is checked between files, not mid-file.
func Compress(ctx context.Context, srcDir, outPath string, opts Options) (err error) {
	info, statErr := os.Stat(srcDir)
	if statErr != nil {
		return errors.Fatal(errors.CodeArchiveFailed, "archive source missing", statErr)
	}
	if !info.IsDir() {
		return errors.Fatal(errors.CodeArchiveFailed, "archive source is not a directory", nil)
	}

	out, createErr := os.Create(outPath)
	if createErr != nil {
		return errors.Fatal(errors.CodeArchiveFailed, "create archive", createErr)
	}
	defer func() {
		if err != nil && !opts.KeepPartial {
			os.Remove(outPath)
		}
	}()

	cw, cwErr := newCompressor(out, opts.Format)
	if cwErr != nil {
		out.Close()
		return errors.Fatal(errors.CodeArchiveFailed, "init compressor", cwErr)
	}

	tw := tar.NewWriter(cw)
	base := filepath.Dir(srcDir)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return addEntry(tw, base, path, d)
	})

	// Close order matters: tar trailer, then compressor frame, then file.
	if cerr := tw.Close(); walkErr == nil {
		walkErr = cerr
	}
	if cerr := cw.Close(); walkErr == nil {
		walkErr = cerr
	}
	if cerr := out.Close(); walkErr == nil {
		walkErr = cerr
	}

	if walkErr != nil {
		if errors.IsCancelled(walkErr) {
			err = errors.Cancelled("archive interrupted")
			return err
		}
		err = errors.Fatal(errors.CodeArchiveFailed, "write archive", walkErr)
		return err
	}
	return nil
}

func addEntry(tw *tar.Writer, base, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if d.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archive %s: %w", hdr.Name, err)
	}
	return nil
}

func newCompressor(w io.Writer, f Format) (io.WriteCloser, error) {
	switch f {
	case FormatZst:
		return zstd.NewWriter(w)
	case FormatGz:
		return gzip.NewWriter(w), nil
	case FormatXz:
		return xz.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown archive format %q", f)
	}
}
