// Package roundsched splits a campaign's recipients into three contiguous
// rounds and places each on the next eligible calendar slot.
package roundsched

import (
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
)

// ErrInvalidBatchInput is returned when total recipients is not positive.
var ErrInvalidBatchInput = errors.New("roundsched: total recipients must be > 0")

// BatchSlot is one round's recipient range and calendar placement.
type BatchSlot struct {
	Round       int
	RangeLo     int64
	RangeHi     int64
	Count       int64
	ScheduledAt time.Time
}

// RangeString renders the recipient range as "lo-hi", matching the
// persisted recipientRange string. An empty round (hi < lo) still renders,
// e.g. "3-2", so downstream bookkeeping stays uniform.
func (b BatchSlot) RangeString() string {
	return fmt.Sprintf("%d-%d", b.RangeLo, b.RangeHi)
}

// Partition splits total recipients into exactly three ordered batches
// starting at or after start, per §4.2:
//  1. chunk = ceil(total/3)
//  2. round 1 = [1..chunk], round 2 = [chunk+1..2*chunk], round 3 = [2*chunk+1..total]
//  3. scheduledAt[1] = nextEligibleSlot(start); scheduledAt[k+1] = nextEligibleSlot(scheduledAt[k] + 24h)
func Partition(total int64, start time.Time) ([]BatchSlot, error) {
	if total <= 0 {
		return nil, ErrInvalidBatchInput
	}

	chunk := (total + 2) / 3
	ranges := [3][2]int64{
		{1, chunk},
		{chunk + 1, 2 * chunk},
		{2*chunk + 1, total},
	}

	slots := make([]BatchSlot, 3)
	cursor := start
	for i, r := range ranges {
		lo, hi := r[0], r[1]
		count := hi - lo + 1
		if count < 0 {
			count = 0
		}

		var scheduled time.Time
		var err error
		if i == 0 {
			scheduled, err = clock.NextEligibleSlot(cursor)
		} else {
			scheduled, err = clock.NextEligibleSlot(cursor.Add(24 * time.Hour))
		}
		if err != nil {
			return nil, err
		}

		slots[i] = BatchSlot{Round: i + 1, RangeLo: lo, RangeHi: hi, Count: count, ScheduledAt: scheduled}
		cursor = scheduled
	}

	return slots, nil
}
