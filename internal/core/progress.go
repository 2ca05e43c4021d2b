package core

// Snapshot is the client-facing view of a job.
type Snapshot struct {
	ID        string   `json:"id"`
	Operation string   `json:"operation"`
	Done      int      `json:"done"`
	Total     int      `json:"total"`
	Percent   int      `json:"percent"`
	Status    Status   `json:"status"`
	Message   string   `json:"message"`
	Errors    ErrorLog `json:"errors"`
}

// Percent returns done as a whole percentage of total, capped at 100.
// An empty job counts as complete.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := done * 100 / total
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// SnapshotOf builds the snapshot for j.
func SnapshotOf(j *Job) Snapshot {
	return Snapshot{
		ID:        j.ID,
		Operation: j.Operation,
		Done:      j.Done,
		Total:     j.Total,
		Percent:   Percent(j.Done, j.Total),
		Status:    j.Status,
		Message:   j.Message,
		Errors: ErrorLog{
			Count:  j.Errors.Count,
			Sample: append([]string(nil), j.Errors.Sample...),
		},
	}
}

// Terminal reports whether the client should stop stepping.
func (s Snapshot) Terminal() bool {
	return s.Status.Terminal()
}
