package models

import "time"

type CycleStatus string

const (
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusFailed    CycleStatus = "failed"
)

// CycleState tracks where a cycle currently is. Transitions are strictly
// sequential; sleeping belongs to the scheduler, not the cycle itself.
type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateFetching    CycleState = "fetching"
	StateParsing     CycleState = "parsing"
	StateStoring     CycleState = "storing"
	StateMatching    CycleState = "matching"
	StateDispatching CycleState = "dispatching"
	StateSleeping    CycleState = "sleeping"
)

// CycleRun records one fetch→parse→store→match→dispatch pass for a source.
// The counters feed the external observability collaborator.
type CycleRun struct {
	ID                  int64       `json:"id" db:"id"`
	SourceID            string      `json:"source_id" db:"source_id"`
	StartedAt           time.Time   `json:"started_at" db:"started_at"`
	FinishedAt          *time.Time  `json:"finished_at" db:"finished_at"`
	Status              CycleStatus `json:"status" db:"status"`
	ListingsFound       int         `json:"listings_found" db:"listings_found"`
	ListingsNew         int         `json:"listings_new" db:"listings_new"`
	FragmentsSkipped    int         `json:"fragments_skipped" db:"fragments_skipped"`
	NotificationsSent   int         `json:"notifications_sent" db:"notifications_sent"`
	NotificationsFailed int         `json:"notifications_failed" db:"notifications_failed"`
	ErrorsCount         int         `json:"errors_count" db:"errors_count"`
	ErrorMessage        string      `json:"error_message" db:"error_message"`
}
