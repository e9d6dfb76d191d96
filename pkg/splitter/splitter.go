package splitter

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/menta2k/yolo-prep/pkg/types"
)

// Result is a train/val partition of the input pairs
type Result struct {
	Train []types.SourcePair `json:"train"`
	Val   []types.SourcePair `json:"val"`
}

// ValidateRatio checks that ratio lies strictly between 0 and 1
func ValidateRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return errors.Wrapf(types.ErrInvalidRatio, "got %v", ratio)
	}
	return nil
}

// Split partitions pairs into train and val subsets. The input is copied and
// sorted by image path, shuffled with a generator seeded only from seed, and cut at
// floor(len*ratio). The same pairs, ratio and seed always give the same assignment,
// whatever order the pairs arrive in. Either subset may be empty.
func Split(pairs []types.SourcePair, ratio float64, seed int64) (*Result, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}

	ordered := make([]types.SourcePair, len(pairs))
	copy(ordered, pairs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ImagePath != ordered[j].ImagePath {
			return ordered[i].ImagePath < ordered[j].ImagePath
		}
		return ordered[i].LabelPath < ordered[j].LabelPath
	})

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ordered), func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})

	idx := int(math.Floor(float64(len(ordered)) * ratio))
	return &Result{
		Train: ordered[:idx:idx],
		Val:   ordered[idx:],
	}, nil
}
