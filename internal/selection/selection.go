// Package selection decides whether an upstream media variant fits the
// delivery limits and picks the smallest acceptable one.
package selection

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

const op = "select variant"

// Limits are the hard caps a delivered artifact must respect.
type Limits struct {
	MaxDuration time.Duration
	MaxBytes    int64
	// Container is the only container the delivery channel accepts, e.g. "mp4".
	Container string
}

// Evaluate checks the item duration first and only then ranks its variants.
// An item longer than MaxDuration yields TooLong without looking at variants.
func Evaluate(item *model.CatalogItem, limits Limits) (model.MediaVariant, error) {
	if err := CheckDuration(item.Duration, limits.MaxDuration); err != nil {
		return model.MediaVariant{}, err
	}
	return Select(item.Variants, limits)
}

// CheckDuration returns a TooLong error when d exceeds max. A zero max disables
// the check.
func CheckDuration(d, max time.Duration) error {
	if max > 0 && d > max {
		return fault.Errorf(fault.TooLong, "check duration", "duration %s exceeds %s", d, max)
	}
	return nil
}

// Select filters variants to the accepted container and returns the preferred
// candidate:
//   - variants whose reported size exceeds MaxBytes are dropped;
//   - variants with a reported size come first, smallest first;
//   - variants without a size follow, lowest resolution first.
//
// No container match yields NoCompatibleFormat. Matches that all report a
// size above the cap yield TooLarge.
func Select(variants []model.MediaVariant, limits Limits) (model.MediaVariant, error) {
	container := strings.ToLower(limits.Container)
	var (
		candidates []model.MediaVariant
		matched    int
	)
	for _, v := range variants {
		if container != "" && !strings.EqualFold(v.Container, container) {
			continue
		}
		matched++
		if limits.MaxBytes > 0 && v.EstimatedSizeBytes > limits.MaxBytes {
			continue
		}
		candidates = append(candidates, v)
	}
	if matched == 0 {
		return model.MediaVariant{}, fault.Errorf(fault.NoCompatibleFormat, op, "no %s variant among %d", container, len(variants))
	}
	if len(candidates) == 0 {
		return model.MediaVariant{}, fault.Errorf(fault.TooLarge, op, "all %d %s variants exceed %d bytes", matched, container, limits.MaxBytes)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
	return candidates[0], nil
}

func less(a, b model.MediaVariant) bool {
	aKnown, bKnown := a.EstimatedSizeBytes > 0, b.EstimatedSizeBytes > 0
	switch {
	case aKnown && bKnown:
		return a.EstimatedSizeBytes < b.EstimatedSizeBytes
	case aKnown != bKnown:
		return aKnown
	default:
		return heightKey(a) < heightKey(b)
	}
}

// heightKey sorts unreported heights after every reported one.
func heightKey(v model.MediaVariant) int {
	if v.HeightPx <= 0 {
		return math.MaxInt
	}
	return v.HeightPx
}
