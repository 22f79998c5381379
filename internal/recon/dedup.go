package recon

import (
	"github.com/sells-group/payout-recon/internal/model"
)

// Exclusions reports keys an operator has confirmed should be dropped from a
// run. The override store implements it.
type Exclusions interface {
	IsExcluded(model.Key) bool
}

// Survivor is one record kept by Deduplicate.
type Survivor struct {
	Index         int // position in the input slice
	Key           model.Key
	DuplicateFlag bool
}

// DedupResult is the outcome of Deduplicate.
type DedupResult struct {
	Survivors []Survivor
	Review    []model.ReviewItem
	Dropped   int // exact duplicates collapsed
	Excluded  int // removed by operator exclusion
}

// Deduplicate collapses exact (client, order) duplicates, keeping the copy
// with the latest ClosedAt (first seen on ties), then flags every surviving
// record whose client appears with another order. Flagged keys go to the
// review list; nothing is removed for them unless ex excludes the key.
func Deduplicate(records []model.OperationalRecord, ex Exclusions) DedupResult {
	var res DedupResult

	best := make(map[model.Key]int, len(records))
	var order []model.Key
	for i, rec := range records {
		k := RecordKey(rec)
		cur, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		res.Dropped++
		if rec.ClosedAfter(records[cur]) {
			best[k] = i
		}
	}

	ordersPerClient := make(map[string]int, len(order))
	for _, k := range order {
		if k.Client != "" {
			ordersPerClient[k.Client]++
		}
	}

	for _, k := range order {
		idx := best[k]
		flagged := k.Client != "" && ordersPerClient[k.Client] > 1
		excluded := ex != nil && ex.IsExcluded(k)

		if flagged {
			res.Review = append(res.Review, model.ReviewItem{
				Key:      k,
				Reason:   model.ReviewDuplicateClient,
				Closer:   records[idx].CloserName,
				Excluded: excluded,
			})
		}
		if excluded {
			res.Excluded++
			continue
		}
		res.Survivors = append(res.Survivors, Survivor{Index: idx, Key: k, DuplicateFlag: flagged})
	}

	return res
}
