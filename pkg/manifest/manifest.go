package manifest

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// FileName is the dataset manifest written next to a materialized dataset
const FileName = "data.yaml"

// RequiredKeys must all be present in a dataset manifest
var RequiredKeys = []string{"path", "train", "val", "names", "nc"}

// DatasetConfig describes a partitioned dataset
type DatasetConfig struct {
	Path  string   `yaml:"path" json:"path"`
	Train string   `yaml:"train" json:"train"`
	Val   string   `yaml:"val" json:"val"`
	NC    int      `yaml:"nc" json:"nc"`
	Names []string `yaml:"names" json:"names"`

	// File is where the manifest was loaded from
	File string `yaml:"-" json:"file,omitempty"`
}

// Load reads a dataset manifest. Missing keys are reported together, wrapped
// around types.ErrMissingKey. names may be a list or an {id: name} mapping.
func Load(fs afero.Fs, path string) (*DatasetConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.File = path
	return cfg, nil
}

// Parse decodes manifest content. A key that is present but blank counts as
// missing. nc must be between 1 and types.MaxClasses.
func Parse(data []byte) (*DatasetConfig, error) {
	var raw map[string]yaml.Node
	err := yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}

	var missing []string
	for _, k := range RequiredKeys {
		if node, ok := raw[k]; !ok || blank(&node) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(types.ErrMissingKey, "missing required keys: %s", strings.Join(missing, ", "))
	}

	cfg := &DatasetConfig{}
	for _, f := range []struct {
		key string
		dst any
	}{{"path", &cfg.Path}, {"train", &cfg.Train}, {"val", &cfg.Val}, {"nc", &cfg.NC}} {
		node := raw[f.key]
		if err = node.Decode(f.dst); err != nil {
			return nil, errors.Wrapf(err, "invalid %q", f.key)
		}
	}
	if cfg.NC < 1 || cfg.NC > types.MaxClasses {
		return nil, errors.Wrapf(types.ErrInvalidManifest, "nc must be between 1 and %d, got %d", types.MaxClasses, cfg.NC)
	}

	node := raw["names"]
	if cfg.Names, err = decodeNames(&node, cfg.NC); err != nil {
		return nil, err
	}
	return cfg, nil
}

func blank(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && (node.Tag == "!!null" || strings.TrimSpace(node.Value) == "")
}

// decodeNames accepts a sequence or a mapping of class id to name. Mapping ids
// must lie in [0,nc); ids missing from a mapping are named by their decimal string.
func decodeNames(node *yaml.Node, nc int) ([]string, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, errors.Wrap(err, `invalid "names"`)
		}
		return list, nil
	case yaml.MappingNode:
		var m map[int]string
		if err := node.Decode(&m); err != nil {
			return nil, errors.Wrap(err, `invalid "names"`)
		}
		ids := make([]int, 0, len(m))
		for id := range m {
			if id < 0 || id >= nc {
				return nil, errors.Wrapf(types.ErrInvalidManifest, "names: class id %d outside 0-%d", id, nc-1)
			}
			ids = append(ids, id)
		}
		sort.Ints(ids)
		if len(ids) == 0 {
			return nil, nil
		}
		list := make([]string, ids[len(ids)-1]+1)
		for id := range list {
			if name, ok := m[id]; ok {
				list[id] = name
			} else {
				list[id] = strconv.Itoa(id)
			}
		}
		return list, nil
	}
	return nil, errors.New(`invalid "names": expected a list or a mapping`)
}

// BasePath returns the dataset root. A relative path is taken relative to the
// manifest's directory.
func (c *DatasetConfig) BasePath() string {
	if filepath.IsAbs(c.Path) || c.File == "" {
		return filepath.Clean(c.Path)
	}
	return filepath.Join(filepath.Dir(c.File), c.Path)
}

// TrainImages returns the training image directory
func (c *DatasetConfig) TrainImages() string {
	return filepath.Join(c.BasePath(), c.Train)
}

// ValImages returns the validation image directory
func (c *DatasetConfig) ValImages() string {
	return filepath.Join(c.BasePath(), c.Val)
}

// TrainLabels returns the training label directory
func (c *DatasetConfig) TrainLabels() string {
	return LabelDir(c.TrainImages())
}

// ValLabels returns the validation label directory
func (c *DatasetConfig) ValLabels() string {
	return LabelDir(c.ValImages())
}

// Name returns the class name for id, or its decimal string
func (c *DatasetConfig) Name(id int) string {
	if id >= 0 && id < len(c.Names) {
		return c.Names[id]
	}
	return strconv.Itoa(id)
}

// LabelDir derives the label directory of an image directory by replacing the
// last "images" path segment with "labels". Without such a segment the labels
// are expected at ../../labels/<leaf>.
func LabelDir(imageDir string) string {
	clean := filepath.Clean(imageDir)
	parts := strings.Split(clean, string(filepath.Separator))
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "images" {
			parts[i] = "labels"
			joined := strings.Join(parts, string(filepath.Separator))
			if joined == "" {
				return string(filepath.Separator)
			}
			return joined
		}
	}
	return filepath.Join(filepath.Dir(filepath.Dir(clean)), "labels", filepath.Base(clean))
}

// ForOutput describes a dataset materialized under root, for a manifest stored in
// root itself. A relative root becomes "." so the manifest stays valid wherever
// it is loaded from.
func ForOutput(root string, names []string) *DatasetConfig {
	path := root
	if !filepath.IsAbs(root) {
		path = "."
	}
	return &DatasetConfig{
		Path:  path,
		Train: filepath.Join("images", types.SubsetTrain),
		Val:   filepath.Join("images", types.SubsetVal),
		NC:    len(names),
		Names: append([]string{}, names...),
	}
}

// Write stores the manifest as <dir>/data.yaml and returns its path
func Write(fs afero.Fs, dir string, cfg *DatasetConfig) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode configuration")
	}
	if err := utils.EnsureDir(fs, dir); err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}
	dst := filepath.Join(dir, FileName)
	if err := utils.WriteFileAtomic(fs, dst, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write configuration")
	}
	return dst, nil
}
