// Package pipeline answers one conversational turn: it picks a table,
// writes SQL, runs it and summarizes the rows in plain English.
package pipeline

const (
	ActionSelectRecords = "select_records"
	ActionBreakdown     = "breakdown"
)

// State is threaded through every stage of a turn. Empty strings mean the
// field is unset.
type State struct {
	Query      string `json:"query"`
	TableName  string `json:"table_name,omitempty"`
	SQL        string `json:"sql,omitempty"`
	Result     string `json:"result,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Memory     string `json:"memory,omitempty"`
	Filters    string `json:"filters,omitempty"`
	LastAction string `json:"last_action,omitempty"`
	LastGroup  string `json:"last_group,omitempty"`
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusSkipped  Status = "skipped"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Outcome records how a stage went. The pipeline keeps going after any
// status; callers read outcomes to explain a weak answer.
type Outcome struct {
	Stage  string `json:"stage"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

type Report struct {
	State    State     `json:"state"`
	Outcomes []Outcome `json:"outcomes"`
}

func ok() Outcome {
	return Outcome{Status: StatusOK}
}

func skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func degraded(reason string, err error) Outcome {
	return Outcome{Status: StatusDegraded, Reason: reason, Err: err}
}

func failed(reason string, err error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason, Err: err}
}
