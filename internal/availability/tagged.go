package availability

import "sort"

// TaggedInterval is a busy interval attributed to the accounts whose
// events (or constraint expansion) produced it, per §4.5's
// `busy_intervals: [{start, end, account_ids}]` output shape.
type TaggedInterval struct {
	Interval
	AccountIDs []string
}

// MergeTagged sorts by start and folds overlapping or touching
// (`end >= next.start`) intervals into one, unioning and
// deduplicating `account_ids` — the pure `mergeIntervals` function
// §4.5 names, generalized to carry the owner tag through a merge.
func MergeTagged(in []TaggedInterval) []TaggedInterval {
	filtered := make([]TaggedInterval, 0, len(in))
	for _, iv := range in {
		if iv.Start.Before(iv.End) {
			filtered = append(filtered, iv)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Start.Before(filtered[j].Start) })

	merged := []TaggedInterval{filtered[0]}
	for _, iv := range filtered[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			last.AccountIDs = unionAccounts(last.AccountIDs, iv.AccountIDs)
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

func unionAccounts(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Untagged strips the account_ids tag, for feeding a tagged busy set
// into the plain interval inverter.
func Untagged(in []TaggedInterval) []Interval {
	out := make([]Interval, len(in))
	for i, iv := range in {
		out[i] = iv.Interval
	}
	return out
}
