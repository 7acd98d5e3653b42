package csvio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Upload is an uploaded file spooled to local disk. The file belongs to the
// request that created it and must be removed on every exit path.
type Upload struct {
	Path string
	Size int64
}

// Spool copies src into a new temporary file under dir (the OS temp
// directory when dir is empty). On failure nothing is left behind.
func Spool(dir string, src io.Reader) (*Upload, error) {
	f, err := os.CreateTemp(dir, "import-*.csv")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	return &Upload{Path: f.Name(), Size: n}, nil
}

// Rows parses the spooled file with ReadRows.
func (u *Upload) Rows() ([]Row, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	return ReadRows(f)
}

// Remove deletes the spooled file. A file that is already gone is not an
// error; callers treat any other failure as best-effort.
func (u *Upload) Remove() error {
	err := os.Remove(u.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
