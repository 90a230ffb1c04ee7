package testutil

import (
	"mailru-backend/internal/telemetry"
	"sync"
)

// Report is a single call recorded by RecordingAPI.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// RecordingAPI is a telemetry.API that keeps every report for assertions.
type RecordingAPI struct {
	mu      sync.Mutex
	reports []Report
}

var _ telemetry.API = (*RecordingAPI)(nil)

func (r *RecordingAPI) record(kind, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, ID: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record("broken", id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record("warning", id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record("debug", msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.record("count", id, []any{count})
}

// Reports returns the recorded reports of the given kind, all of them when
// kind is empty.
func (r *RecordingAPI) Reports(kind string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Report
	for _, report := range r.reports {
		if kind == "" || report.Kind == kind {
			out = append(out, report)
		}
	}
	return out
}
