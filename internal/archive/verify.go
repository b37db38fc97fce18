package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/randalmurphal/gh-backup/internal/errors"
)

// Verify reads the archive end to end and returns the number of entries.
// It decodes every byte, so a truncated or corrupted archive fails even
// when its headers look sound.
func Verify(path string) (int, error) {
	format, err := formatOf(path)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Fatal(errors.CodeArchiveFailed, "open archive", err)
	}
	defer f.Close()

	r, closer, err := newDecompressor(f, format)
	if err != nil {
		return 0, errors.Fatal(errors.CodeArchiveFailed, "init decompressor", err)
	}
	if closer != nil {
		defer closer()
	}

	tr := tar.NewReader(r)
	count := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, errors.Fatal(errors.CodeArchiveFailed, "archive verification failed", err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return count, errors.Fatal(errors.CodeArchiveFailed, "archive verification failed", err)
		}
		count++
	}
}

func formatOf(path string) (Format, error) {
	for _, f := range []Format{FormatZst, FormatGz, FormatXz} {
		if strings.HasSuffix(path, f.Suffix()) {
			return f, nil
		}
	}
	return "", errors.Fatal(errors.CodeArchiveFailed, "unrecognized archive suffix", nil)
}

func newDecompressor(r io.Reader, f Format) (io.Reader, func(), error) {
	switch f {
	case FormatZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case FormatGz:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, func() { gr.Close() }, nil
	default:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, nil, nil
	}
}
