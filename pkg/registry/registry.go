package registry

import (
	"bufio"
	"bytes"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// ClassesFile is the class-name manifest looked up in the source tree and written to the output root
const ClassesFile = "classes.txt"

// Origin tells how a registry was obtained
type Origin string

const (
	OriginExplicit Origin = "explicit"
	OriginInferred Origin = "inferred"
)

// Registry maps dense class ids 0..NC-1 to names
type Registry struct {
	Names  []string `json:"names"`
	Origin Origin   `json:"origin"`
	// Observed is the sorted set of distinct ids seen in label files (inferred only)
	Observed []int `json:"observed,omitempty"`
	// Skipped counts label lines that could not be parsed during inference,
	// including ids outside [0, types.MaxClasses)
	Skipped int `json:"skipped,omitempty"`

	source string
}

// NC returns the number of classes
func (r *Registry) NC() int {
	if r == nil {
		return 0
	}
	return len(r.Names)
}

// Name returns the class name for id, or its decimal string when id is unknown
func (r *Registry) Name(id int) string {
	if r != nil && id >= 0 && id < len(r.Names) {
		return r.Names[id]
	}
	return strconv.Itoa(id)
}

// Gaps lists ids in 0..NC-1 that no label file used (inferred only)
func (r *Registry) Gaps() []int {
	if r == nil || r.Origin != OriginInferred {
		return nil
	}
	seen := make(map[int]bool, len(r.Observed))
	for _, id := range r.Observed {
		seen[id] = true
	}
	var gaps []int
	for id := range r.Names {
		if !seen[id] {
			gaps = append(gaps, id)
		}
	}
	return gaps
}

// Source resolves a class registry. Implemented by Explicit and Inferred.
type Source interface {
	Resolve(fs afero.Fs) (*Registry, error)
}

// Explicit loads the registry verbatim from a class-name manifest
type Explicit struct {
	Path string
}

// Inferred synthesizes the registry from the class ids found in a directory's label files
type Inferred struct {
	Dir string
}

// Detect returns Explicit when sourceDir holds a classes.txt, Inferred otherwise
func Detect(fs afero.Fs, sourceDir string) Source {
	p := filepath.Join(sourceDir, ClassesFile)
	if utils.FileExists(fs, p) {
		return Explicit{Path: p}
	}
	return Inferred{Dir: sourceDir}
}

// Resolve reads the manifest, one class name per non-blank line, index = class id
func (e Explicit) Resolve(fs afero.Fs) (*Registry, error) {
	data, err := afero.ReadFile(fs, e.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read class manifest")
	}
	reg := &Registry{Origin: OriginExplicit, source: e.Path}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			reg.Names = append(reg.Names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read class manifest")
	}
	return reg, nil
}

// Resolve scans every label file in Dir, skipping lines that do not parse or
// carry an id of types.MaxClasses or more, and names ids 0..max by their decimal
// string so that line index equals class id.
// Unreadable files are skipped, not fatal.
func (i Inferred) Resolve(fs afero.Fs) (*Registry, error) {
	files, err := utils.ListLabelFiles(fs, i.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", i.Dir)
	}

	reg := &Registry{Origin: OriginInferred}
	seen := map[int]bool{}
	for _, f := range files {
		if filepath.Base(f) == ClassesFile {
			continue
		}
		data, err := afero.ReadFile(fs, f)
		if err != nil {
			log.Warn().Err(err).Str("file", f).Msg("skipping unreadable label file")
			continue
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			id, ok := annotation.ParseClassID(line)
			if !ok || id < 0 || id >= types.MaxClasses {
				reg.Skipped++
				continue
			}
			seen[id] = true
		}
	}

	for id := range seen {
		reg.Observed = append(reg.Observed, id)
	}
	sort.Ints(reg.Observed)
	if n := len(reg.Observed); n > 0 {
		maxID := reg.Observed[n-1]
		reg.Names = make([]string, maxID+1)
		for id := range reg.Names {
			reg.Names[id] = strconv.Itoa(id)
		}
	}
	return reg, nil
}

// Resolve runs src and never fails: errors degrade to an empty registry of the
// source's origin and are logged.
func Resolve(fs afero.Fs, src Source) *Registry {
	reg, err := src.Resolve(fs)
	if err == nil {
		return reg
	}
	log.Warn().Err(err).Msg("class registry unavailable")
	if _, ok := src.(Explicit); ok {
		return &Registry{Origin: OriginExplicit}
	}
	return &Registry{Origin: OriginInferred}
}

// Persist writes classes.txt into outputRoot. An explicit manifest is copied
// unchanged; an inferred registry is written one name per line. An empty
// registry writes nothing and returns false.
func (r *Registry) Persist(fs afero.Fs, outputRoot string) (bool, error) {
	if r == nil || len(r.Names) == 0 {
		return false, nil
	}
	if err := utils.EnsureDir(fs, outputRoot); err != nil {
		return false, errors.Wrap(err, "failed to create output directory")
	}
	dst := filepath.Join(outputRoot, ClassesFile)

	if r.Origin == OriginExplicit && r.source != "" {
		if err := utils.CopyFile(fs, r.source, dst); err != nil {
			return false, errors.Wrap(err, "failed to copy class manifest")
		}
		return true, nil
	}

	var buf bytes.Buffer
	for _, name := range r.Names {
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	if err := utils.WriteFileAtomic(fs, dst, buf.Bytes(), 0o644); err != nil {
		return false, errors.Wrap(err, "failed to write class manifest")
	}
	return true, nil
}
