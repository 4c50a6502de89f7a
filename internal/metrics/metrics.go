package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds pipeline counters. All methods are safe on a nil receiver.
type Registry struct {
	unmatchedNotifications atomic.Int64
	handoffDropped         atomic.Int64
	hashMismatches         atomic.Int64
	specsLoaded            atomic.Int64
	specsInvalid           atomic.Int64

	notifications sync.Map // watcher\x00kind -> *atomic.Int64
	subjects      sync.Map // subject -> *subjectStats
}

type subjectStats struct {
	published       atomic.Int64
	publishFailures atomic.Int64
	dispatched      atomic.Int64
	decodeFailures  atomic.Int64
	handlerFailures atomic.Int64
	durationNanos   atomic.Int64
}

var Default = &Registry{}

func (r *Registry) RecordNotification(watcher, kind string) {
	if r == nil {
		return
	}
	key := labelOrUnknown(watcher) + "\x00" + labelOrUnknown(kind)
	value, _ := r.notifications.LoadOrStore(key, &atomic.Int64{})
	value.(*atomic.Int64).Add(1)
}

func (r *Registry) IncUnmatchedNotification() {
	if r == nil {
		return
	}
	r.unmatchedNotifications.Add(1)
}

func (r *Registry) IncHandoffDropped() {
	if r == nil {
		return
	}
	r.handoffDropped.Add(1)
}

func (r *Registry) IncHashMismatch() {
	if r == nil {
		return
	}
	r.hashMismatches.Add(1)
}

func (r *Registry) RecordSpecLoad(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.specsInvalid.Add(1)
		return
	}
	r.specsLoaded.Add(1)
}

func (r *Registry) RecordPublish(subject string, err error) {
	if r == nil {
		return
	}
	stats := r.subjectStats(subject)
	if err != nil {
		stats.publishFailures.Add(1)
		return
	}
	stats.published.Add(1)
}

func (r *Registry) IncDecodeFailure(subject string) {
	if r == nil {
		return
	}
	r.subjectStats(subject).decodeFailures.Add(1)
}

// RecordDispatch counts one handler invocation and its outcome.
func (r *Registry) RecordDispatch(subject string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	stats := r.subjectStats(subject)
	stats.dispatched.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if err != nil {
		stats.handlerFailures.Add(1)
	}
}

// Snapshot is a copy of the per-subject counters.
type Snapshot struct {
	Published       int64
	PublishFailures int64
	Dispatched      int64
	DecodeFailures  int64
	HandlerFailures int64
}

func (r *Registry) Subject(subject string) Snapshot {
	if r == nil {
		return Snapshot{}
	}
	value, ok := r.subjects.Load(labelOrUnknown(subject))
	if !ok {
		return Snapshot{}
	}
	stats := value.(*subjectStats)
	return Snapshot{
		Published:       stats.published.Load(),
		PublishFailures: stats.publishFailures.Load(),
		Dispatched:      stats.dispatched.Load(),
		DecodeFailures:  stats.decodeFailures.Load(),
		HandlerFailures: stats.handlerFailures.Load(),
	}
}

func (r *Registry) Notifications(watcher, kind string) int64 {
	if r == nil {
		return 0
	}
	value, ok := r.notifications.Load(labelOrUnknown(watcher) + "\x00" + labelOrUnknown(kind))
	if !ok {
		return 0
	}
	return value.(*atomic.Int64).Load()
}

func (r *Registry) HandoffDropped() int64 {
	if r == nil {
		return 0
	}
	return r.handoffDropped.Load()
}

// SpecLoads returns the number of valid and invalid spec loads.
func (r *Registry) SpecLoads() (loaded, invalid int64) {
	if r == nil {
		return 0, 0
	}
	return r.specsLoaded.Load(), r.specsInvalid.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "echo_notifications_unmatched_total", "Filesystem notifications with no owning watcher", r.unmatchedNotifications.Load())
	writeCounter(writer, "echo_handoff_dropped_total", "Events dropped because the dispatch queue was full", r.handoffDropped.Load())
	writeCounter(writer, "echo_hash_mismatches_total", "Inbound events whose transmitted hash did not match", r.hashMismatches.Load())
	writeCounter(writer, "echo_specs_loaded_total", "Spec documents loaded", r.specsLoaded.Load())
	writeCounter(writer, "echo_specs_invalid_total", "Spec documents rejected", r.specsInvalid.Load())

	writeHelp(writer, "echo_notifications_total", "Filesystem notifications by watcher and kind")
	fmt.Fprintln(writer, "# TYPE echo_notifications_total counter")
	for _, key := range sortedKeys(&r.notifications) {
		parts := strings.SplitN(key, "\x00", 2)
		value, _ := r.notifications.Load(key)
		fmt.Fprintf(writer, "echo_notifications_total{watcher=%s,kind=%s} %d\n",
			formatLabel(parts[0]), formatLabel(parts[1]), value.(*atomic.Int64).Load())
	}

	subjects := sortedKeys(&r.subjects)
	series := []struct {
		name string
		help string
		kind string
		read func(*subjectStats) int64
	}{
		{"echo_events_published_total", "Events published", "counter", func(s *subjectStats) int64 { return s.published.Load() }},
		{"echo_publish_failures_total", "Publish failures", "counter", func(s *subjectStats) int64 { return s.publishFailures.Load() }},
		{"echo_decode_failures_total", "Inbound messages that failed to decode", "counter", func(s *subjectStats) int64 { return s.decodeFailures.Load() }},
		{"echo_handler_failures_total", "Handler failures", "counter", func(s *subjectStats) int64 { return s.handlerFailures.Load() }},
	}
	for _, metric := range series {
		writeHelp(writer, metric.name, metric.help)
		fmt.Fprintf(writer, "# TYPE %s %s\n", metric.name, metric.kind)
		for _, subject := range subjects {
			fmt.Fprintf(writer, "%s{subject=%s} %d\n", metric.name, formatLabel(subject), metric.read(r.subjectStats(subject)))
		}
	}

	writeHelp(writer, "echo_dispatch_duration_seconds", "Handler dispatch duration in seconds")
	fmt.Fprintln(writer, "# TYPE echo_dispatch_duration_seconds summary")
	for _, subject := range subjects {
		stats := r.subjectStats(subject)
		label := formatLabel(subject)
		seconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "echo_dispatch_duration_seconds_sum{subject=%s} %.6f\n", label, seconds)
		fmt.Fprintf(writer, "echo_dispatch_duration_seconds_count{subject=%s} %d\n", label, stats.dispatched.Load())
	}

	return nil
}

func (r *Registry) subjectStats(subject string) *subjectStats {
	value, _ := r.subjects.LoadOrStore(labelOrUnknown(subject), &subjectStats{})
	return value.(*subjectStats)
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func labelOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	escaped = strings.ReplaceAll(escaped, "\n", "\\n")
	return fmt.Sprintf("\"%s\"", escaped)
}
