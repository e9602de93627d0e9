package models

import "time"

type CommandType string

const (
	CmdRunNow CommandType = "run_now"
	CmdPause  CommandType = "pause"
	CmdResume CommandType = "resume"
)

// Command is a durable admin trigger. An external scheduler or operator
// inserts a row; the daemon's command poller picks it up within seconds.
type Command struct {
	ID          int64       `json:"id" db:"id"`
	Command     CommandType `json:"command" db:"command"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at" db:"processed_at"`
}
