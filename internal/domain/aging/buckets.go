package aging

import (
	"errors"
	"fmt"
)

// Bucket is one aging range. MaxDays is the inclusive upper bound in days
// overdue; nil marks the unbounded catch-all bucket. Color is carried for
// chart consumers and plays no part in classification.
type Bucket struct {
	Label   string `json:"label"`
	MaxDays *int   `json:"max_days"`
	Color   string `json:"color"`
}

// BucketConfig is an ordered bucket list. Order defines evaluation
// precedence: classification walks the list and the first match wins.
type BucketConfig []Bucket

// ErrNoCatchAllBucket is returned by Validate when the configuration does not
// end with an unbounded bucket. Without one, rows past the last boundary
// silently fall back to the first bucket, which misreports the oldest debt.
var ErrNoCatchAllBucket = errors.New("aging: bucket config must end with an unbounded bucket")

// DefaultBuckets returns the standard four-range configuration.
func DefaultBuckets() BucketConfig {
	return BucketConfig{
		{Label: "0-30", MaxDays: intPtr(30), Color: "#4caf50"},
		{Label: "30-60", MaxDays: intPtr(60), Color: "#ffc107"},
		{Label: "60-90", MaxDays: intPtr(90), Color: "#ff9800"},
		{Label: ">90", MaxDays: nil, Color: "#f44336"},
	}
}

// Validate checks the configuration is usable: non-empty, strictly increasing
// bounds, exactly one unbounded bucket, in last position.
func (c BucketConfig) Validate() error {
	if len(c) == 0 {
		return errors.New("aging: bucket config is empty")
	}
	prev := 0
	for i, b := range c {
		if b.MaxDays == nil {
			if i != len(c)-1 {
				return fmt.Errorf("aging: unbounded bucket %q must be last", b.Label)
			}
			return nil
		}
		if *b.MaxDays <= prev {
			return fmt.Errorf("aging: bucket %q bound %d does not increase", b.Label, *b.MaxDays)
		}
		prev = *b.MaxDays
	}
	return ErrNoCatchAllBucket
}

// BucketFor classifies a days-overdue value. Rows with no days value
// (not overdue, or unparseable date) classify into the first bucket rather
// than a distinct unknown bucket; consumers that want to exclude them filter
// on the days value before bucketing.
func (c BucketConfig) BucketFor(days int, ok bool) string {
	if len(c) == 0 {
		return ""
	}
	if !ok {
		return c[0].Label
	}
	for _, b := range c {
		if b.MaxDays == nil || *b.MaxDays >= days {
			return b.Label
		}
	}
	// No catch-all configured; legacy behavior keeps such rows in bucket 0.
	return c[0].Label
}

func intPtr(v int) *int { return &v }
