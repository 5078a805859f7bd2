package config

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Schedule is a named recurrence resolved to a fixed interval.
type Schedule struct {
	Name     string
	Interval time.Duration
	Spec     string
}

// specReference anchors interval derivation so it is deterministic.
var specReference = time.Date(2000, time.January, 3, 0, 0, 0, 0, time.UTC)

var builtinSchedules = []ScheduleSpec{
	{Name: "hourly", Interval: time.Hour},
	{Name: "twicedaily", Interval: 12 * time.Hour},
	{Name: "daily", Interval: 24 * time.Hour},
	{Name: "weekly", Interval: 7 * 24 * time.Hour},
}

// ScheduleRegistry resolves schedule names to intervals. Jobs keep the last
// known interval, so a name missing here does not strand a recurring job.
type ScheduleRegistry struct {
	schedules map[string]Schedule
	parser    cron.Parser
	mutex     sync.RWMutex
}

func NewScheduleRegistry() *ScheduleRegistry {
	sr := &ScheduleRegistry{
		schedules: make(map[string]Schedule),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, spec := range builtinSchedules {
		_ = sr.Register(spec)
	}
	return sr
}

// Register adds or replaces a schedule.
func (sr *ScheduleRegistry) Register(spec ScheduleSpec) error {
	if spec.Name == "" {
		return errors.New("schedule name must not be empty")
	}

	interval := spec.Interval
	if spec.Spec != "" {
		parsed, err := sr.parser.Parse(spec.Spec)
		if err != nil {
			return errors.Wrapf(err, "invalid spec for schedule %q", spec.Name)
		}
		interval = intervalOf(parsed)
	}
	if interval < time.Second {
		return errors.Newf("schedule %q must recur at least every second", spec.Name)
	}

	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	sr.schedules[spec.Name] = Schedule{Name: spec.Name, Interval: interval.Truncate(time.Second), Spec: spec.Spec}
	return nil
}

// Interval returns the interval of a named schedule in seconds.
func (sr *ScheduleRegistry) Interval(name string) (int64, bool) {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	s, ok := sr.schedules[name]
	if !ok {
		return 0, false
	}
	return int64(s.Interval / time.Second), true
}

func (sr *ScheduleRegistry) Get(name string) (Schedule, bool) {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	s, ok := sr.schedules[name]
	return s, ok
}

func (sr *ScheduleRegistry) List() []Schedule {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	list := make([]Schedule, 0, len(sr.schedules))
	for _, s := range sr.schedules {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Interval < list[j].Interval })
	return list
}

func intervalOf(s cron.Schedule) time.Duration {
	if constant, ok := s.(cron.ConstantDelaySchedule); ok {
		return constant.Delay
	}
	first := s.Next(specReference)
	return s.Next(first).Sub(first)
}
