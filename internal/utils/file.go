package utils

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DefaultImageExtensions is the recognized image extension set, lower-cased with the dot
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"}

// LabelExtension is the extension of YOLO annotation files
const LabelExtension = ".txt"

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(fs afero.Fs, dir string) error {
	if ok, _ := afero.DirExists(fs, dir); ok {
		return nil
	}
	return fs.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lower-cased file extension including the dot
func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsImageFile checks if a file has one of the given image extensions (case-insensitive)
func IsImageFile(filename string, exts []string) bool {
	ext := GetFileExtension(filename)
	if ext == "" {
		return false
	}
	for _, imgExt := range exts {
		if ext == strings.ToLower(imgExt) {
			return true
		}
	}
	return false
}

// LabelPathFor returns the label file that pairs with an image in labelDir
func LabelPathFor(imagePath, labelDir string) string {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(labelDir, stem+LabelExtension)
}

// ListFiles lists regular files directly under dir whose name satisfies keep.
// The result is sorted by path.
func ListFiles(fs afero.Fs, dir string, keep func(name string) bool) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !keep(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ListImageFiles lists image files directly under dir
func ListImageFiles(fs afero.Fs, dir string, exts []string) ([]string, error) {
	return ListFiles(fs, dir, func(name string) bool { return IsImageFile(name, exts) })
}

// ListLabelFiles lists .txt files directly under dir
func ListLabelFiles(fs afero.Fs, dir string) ([]string, error) {
	return ListFiles(fs, dir, func(name string) bool {
		return GetFileExtension(name) == LabelExtension
	})
}

// FileExists checks if a file exists and is not a directory
func FileExists(fs afero.Fs, filename string) bool {
	info, err := fs.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(fs afero.Fs, dirname string) bool {
	ok, err := afero.DirExists(fs, dirname)
	return err == nil && ok
}

// CopyFile copies src to dst verbatim, keeping the source mode and modification time
func CopyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	info, err := fs.Stat(src)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(fs, dst, data, info.Mode().Perm()); err != nil {
		return err
	}
	return fs.Chtimes(dst, info.ModTime(), info.ModTime())
}

// WriteFileAtomic writes data to a temp file next to name and renames it into place,
// so a failed write never leaves a truncated file behind.
func WriteFileAtomic(fs afero.Fs, name string, data []byte, perm os.FileMode) error {
	tmp, err := afero.TempFile(fs, filepath.Dir(name), "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return err
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		fs.Remove(tmpName)
		return err
	}
	if err := fs.Rename(tmpName, name); err != nil {
		fs.Remove(tmpName)
		return err
	}
	return nil
}
