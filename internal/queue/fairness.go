package queue

import "github.com/RezaEskandarii/cronctl/internal/events"

// Reduce caps entries at batchSize without letting one action fill the
// batch. Each sweep i moves, in order, every entry whose action has been
// moved fewer than i times, so actions interleave. The interleaved order is
// the result and must not be re-sorted by timestamp.
func Reduce(entries []events.Entry, batchSize, maxSweeps int) []events.Entry {
	if batchSize < 1 || len(entries) <= batchSize {
		return entries
	}

	reduced := make([]events.Entry, 0, batchSize)
	moved := make(map[string]int)
	remaining := entries

	for sweep := 1; sweep <= maxSweeps && len(remaining) > 0 && len(reduced) < batchSize; sweep++ {
		var left []events.Entry
		for _, entry := range remaining {
			if moved[entry.Action] < sweep {
				reduced = append(reduced, entry)
				moved[entry.Action]++
			} else {
				left = append(left, entry)
			}
		}
		remaining = left
	}

	if len(reduced) > batchSize {
		reduced = reduced[:batchSize]
	}
	return reduced
}
