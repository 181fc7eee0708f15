package metrics

import (
	"log"
	"sort"
	"strings"
)

// Sink receives best-effort operational measurements. Emission failures must
// never affect the caller; implementations return an error only so callers
// can log it.
type Sink interface {
	Emit(name string, value float64, tags map[string]string) error
}

// LogSink writes measurements to the process log.
type LogSink struct{}

func (LogSink) Emit(name string, value float64, tags map[string]string) error {
	log.Printf("metric %s=%g %s", name, value, formatTags(tags))
	return nil
}

// NopSink discards measurements.
type NopSink struct{}

func (NopSink) Emit(string, float64, map[string]string) error { return nil }

func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
