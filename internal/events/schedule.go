package events

import (
	"context"
	"sort"
	"strconv"
	"unicode"

	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/types"
)

// Entry is one element of the flattened schedule.
type Entry struct {
	Timestamp int64  `json:"timestamp"`
	Action    string `json:"action"`
	Instance  string `json:"instance"`
	Schedule  string `json:"schedule,omitempty"`
	Args      []any  `json:"args"`
	Interval  int64  `json:"interval"`
}

func (e Entry) IsRecurring() bool {
	return e.Schedule != ""
}

// EventData is what the nested schedule stores per instance.
type EventData struct {
	Schedule string
	Args     []any
	Interval int64
}

// Schedule nests pending firings by timestamp, then action, then instance.
// Timestamps are kept as decimal strings and ordered with a natural
// comparison so "999" sorts before "1000".
type Schedule map[string]map[string]map[string]EventData

func (s Schedule) Add(job types.Job) {
	ts := strconv.FormatInt(job.Timestamp, 10)
	actions, ok := s[ts]
	if !ok {
		actions = make(map[string]map[string]EventData)
		s[ts] = actions
	}
	instances, ok := actions[job.Action]
	if !ok {
		instances = make(map[string]EventData)
		actions[job.Action] = instances
	}
	instances[job.Instance] = EventData{
		Schedule: job.Schedule,
		Args:     job.Args,
		Interval: job.Interval,
	}
}

// Flatten lists every firing in timestamp order. Ties are ordered by action
// and then instance so the result is stable between rebuilds.
func (s Schedule) Flatten() []Entry {
	timestamps := make([]string, 0, len(s))
	for ts := range s {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return naturalLess(timestamps[i], timestamps[j])
	})

	var entries []Entry
	for _, ts := range timestamps {
		timestamp, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			continue
		}
		actions := s[ts]
		for _, action := range sortedKeys(actions) {
			instances := actions[action]
			for _, instance := range sortedKeys(instances) {
				data := instances[instance]
				entries = append(entries, Entry{
					Timestamp: timestamp,
					Action:    action,
					Instance:  instance,
					Schedule:  data.Schedule,
					Args:      data.Args,
					Interval:  data.Interval,
				})
			}
		}
	}
	return entries
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// naturalLess compares case-insensitively, treating runs of digits as numbers.
func naturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na, nb := trimZeros(ra[si:i]), trimZeros(rb[sj:j])
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if x, y := string(na), string(nb); x != y {
				return x < y
			}
			continue
		}
		ca, cb := unicode.ToLower(ra[i]), unicode.ToLower(rb[j])
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}

func trimZeros(digits []rune) []rune {
	for len(digits) > 1 && digits[0] == '0' {
		digits = digits[1:]
	}
	return digits
}

// rebuild reads every pending job page by page. Rows with an unusable
// timestamp are completed so whoever scheduled them can fix it, once paging
// is over so the pages do not shift under it.
func (s *Store) rebuild(ctx context.Context) ([]Entry, error) {
	schedule := make(Schedule)
	pageSize, maxPages := s.cfg.RebuildPageSize, s.cfg.RebuildMaxPages
	var invalid []int64

	for page := 1; ; page++ {
		jobs, err := s.jobs.GetJobs(ctx, state.FilterPending, pageSize, page, false)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if job.Timestamp <= 0 {
				invalid = append(invalid, job.ID)
				continue
			}
			schedule.Add(job)
		}

		if len(jobs) < pageSize {
			break
		}
		if page >= maxPages {
			s.logger.Warn().
				Int("pages", page).
				Int("page_size", pageSize).
				Msg("pending schedule is too large, listing was truncated")
			break
		}
	}

	for _, id := range invalid {
		if _, err := s.jobs.MarkCompletedByID(ctx, id); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", id).Msg("failed to complete job with invalid timestamp")
		}
	}

	return schedule.Flatten(), nil
}

// NextTimestamp is when a recurring job due at timestamp runs next. Late jobs
// catch up to the next slot aligned with their original timestamp instead of
// drifting by however late they ran.
func NextTimestamp(timestamp, interval, now int64) int64 {
	if interval <= 0 {
		return now
	}
	if timestamp > now {
		return now + interval
	}
	return now + (interval - ((now - timestamp) % interval))
}
