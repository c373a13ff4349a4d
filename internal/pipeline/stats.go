package pipeline

// RunStats tracks aggregate counters and byte totals across a batch run.
type RunStats struct {
	Total   int
	Current int
	Done    int
	Skipped int
	Busy    int // subset of Skipped
	Failed  int

	Renditions   int // artifacts written, manifests included
	Attempts     int // transcoder attempts across all assets
	BytesWritten int64
}

// Add folds one asset's result into the totals.
func (s *RunStats) Add(res Result) {
	switch res.Outcome {
	case OutcomeDone:
		s.Done++
	case OutcomeSkipped:
		s.Skipped++
		if res.Reason == ReasonBusy {
			s.Busy++
		}
	case OutcomeFailed:
		s.Failed++
	}
	s.Renditions += len(res.Produced)
	s.BytesWritten += res.Bytes
	if res.Report != nil {
		s.Attempts += res.Report.TotalAttempts
	}
}
