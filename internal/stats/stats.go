// Package stats turns the activity log into the aggregate counters the
// dashboard serves. A Snapshot can be computed from scratch over a record
// slice or maintained incrementally as records arrive; both paths produce
// identical numbers for the same inputs.
package stats

import (
	"time"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

const (
	daysTracked  = 7
	hoursTracked = 24
)

// DayCount is the number of successful forwards on a calendar day.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// HourCount is the number of successful forwards in a clock hour.
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// SourceCount aggregates forwards per source chat.
type SourceCount struct {
	ChatID     int64  `json:"chat_id"`
	SourceName string `json:"source_name"`
	Count      int64  `json:"count"`
}

// Snapshot is the full rollup served by the dashboard.
type Snapshot struct {
	Total         int64            `json:"total"`
	Succeeded     int64            `json:"succeeded"`
	Failed        int64            `json:"failed"`
	Today         int64            `json:"today"`
	Week          int64            `json:"week"`
	TotalBytes    int64            `json:"total_bytes"`
	TotalDuration int64            `json:"total_duration_secs"`
	ByKind        map[string]int64 `json:"by_kind"`
	BySource      []SourceCount    `json:"by_source"`
	PerDay        []DayCount       `json:"per_day"`
	PerHour       []HourCount      `json:"per_hour"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// Rollup computes a Snapshot over records, evaluated at now. Records newer
// than now still count toward totals but not toward the windowed buckets.
func Rollup(records []domain.ActivityRecord, now time.Time) Snapshot {
	acc := newAccumulator()
	for i := range records {
		acc.add(&records[i])
	}

	return acc.snapshot(now)
}

// accumulator holds the raw counters a Snapshot is cut from. Day and hour
// buckets are keyed absolutely so the windows can be evaluated at any
// point in time without reprocessing records.
type accumulator struct {
	total         int64
	succeeded     int64
	failed        int64
	totalBytes    int64
	totalDuration int64
	byKind        map[domain.MediaKind]int64
	bySource      map[int64]*SourceCount
	sourceOrder   []int64
	byDay         map[string]int64
	byHour        map[time.Time]int64
}

func newAccumulator() *accumulator {
	return &accumulator{
		byKind:   make(map[domain.MediaKind]int64),
		bySource: make(map[int64]*SourceCount),
		byDay:    make(map[string]int64),
		byHour:   make(map[time.Time]int64),
	}
}

func (a *accumulator) add(rec *domain.ActivityRecord) {
	a.total++
	a.byKind[rec.Kind]++

	src, ok := a.bySource[rec.SourceChatID]
	if !ok {
		src = &SourceCount{ChatID: rec.SourceChatID, SourceName: rec.SourceName}
		a.bySource[rec.SourceChatID] = src
		a.sourceOrder = append(a.sourceOrder, rec.SourceChatID)
	}

	src.Count++
	// Names drift; the latest observed one wins.
	src.SourceName = rec.SourceName

	if rec.Outcome != domain.OutcomeSuccess {
		a.failed++

		return
	}

	a.succeeded++
	a.totalBytes += rec.FileSize
	a.totalDuration += int64(rec.Duration)

	ts := rec.Timestamp.UTC()
	a.byDay[ts.Format("2006-01-02")]++
	a.byHour[ts.Truncate(time.Hour)]++
}

func (a *accumulator) snapshot(now time.Time) Snapshot {
	now = now.UTC()

	snap := Snapshot{
		Total:         a.total,
		Succeeded:     a.succeeded,
		Failed:        a.failed,
		TotalBytes:    a.totalBytes,
		TotalDuration: a.totalDuration,
		ByKind:        make(map[string]int64, len(a.byKind)),
		GeneratedAt:   now,
	}

	for kind, n := range a.byKind {
		snap.ByKind[string(kind)] = n
	}

	for _, chatID := range a.sourceOrder {
		snap.BySource = append(snap.BySource, *a.bySource[chatID])
	}

	today := now.Format("2006-01-02")
	snap.Today = a.byDay[today]

	// Oldest day first, ending today.
	for i := daysTracked - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		count := a.byDay[day]
		snap.Week += count
		snap.PerDay = append(snap.PerDay, DayCount{Day: day, Count: count})
	}

	// Oldest hour first, ending with the current hour.
	currentHour := now.Truncate(time.Hour)
	for i := hoursTracked - 1; i >= 0; i-- {
		hour := currentHour.Add(-time.Duration(i) * time.Hour)
		snap.PerHour = append(snap.PerHour, HourCount{
			Hour:  hour.Hour(),
			Count: a.byHour[hour],
		})
	}

	return snap
}
