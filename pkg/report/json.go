package report

import (
	"bytes"
	"io"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/utils"
)

// EncodeJSON writes v as indented JSON
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	return nil
}

// WriteJSON stores v as indented JSON at path
func WriteJSON(fs afero.Fs, path string, v any) error {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, v); err != nil {
		return err
	}
	if err := utils.EnsureDir(fs, filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "failed to create report directory")
	}
	return utils.WriteFileAtomic(fs, path, buf.Bytes(), 0o644)
}
