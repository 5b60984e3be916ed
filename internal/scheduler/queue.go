package scheduler

import (
	"sort"

	"github.com/conorfennell/benkyo/internal/domain"
)

// RequeueAgain re-inserts a card rated Again into the not-yet-studied portion
// of the review queue and re-sorts that portion ascending by due date. Only
// the remaining portion is ever reordered; already-studied cards keep their
// order by construction, since they are no longer in the slice.
//
// remaining holds the item ids still to be studied, excluding the card just
// rated. The input slice is not modified.
func RequeueAgain(remaining []int64, againID int64, cards map[int64]domain.SchedulingCard) []int64 {
	queue := make([]int64, 0, len(remaining)+1)
	queue = append(queue, remaining...)
	queue = append(queue, againID)

	sort.SliceStable(queue, func(i, j int) bool {
		di, dj := cards[queue[i]].Due, cards[queue[j]].Due
		if di.Equal(dj) {
			return queue[i] < queue[j]
		}
		return di.Before(dj)
	})
	return queue
}
