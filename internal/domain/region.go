package domain

import "github.com/paulmach/orb"

// RegionOf returns the smallest longitude/latitude rectangle containing the
// positions of records. Records without a position are ignored. It reports
// false when no record has a position.
func RegionOf(records []Record) (orb.Bound, bool) {
	var (
		bound orb.Bound
		found bool
	)
	for _, r := range records {
		if r.Position == nil {
			continue
		}
		p := r.Position.Point()
		if !found {
			bound = p.Bound()
			found = true
			continue
		}
		bound = bound.Extend(p)
	}
	return bound, found
}
