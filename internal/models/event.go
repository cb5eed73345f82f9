package models

type JobCompletedEvent struct {
	BatchID        string  `json:"batch_id"`
	JobID          int     `json:"job_id"`
	SourceDocument string  `json:"source_document"`
	Status         string  `json:"status"`
	FailureKind    string  `json:"failure_kind,omitempty"`
	GrandTotal     float64 `json:"grand_total,omitempty"`
	Result         string  `json:"result,omitempty"`
	Timestamp      int64   `json:"timestamp"`
}

type BatchFinishedEvent struct {
	BatchID   string `json:"batch_id"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	Timestamp int64  `json:"timestamp"`
}
