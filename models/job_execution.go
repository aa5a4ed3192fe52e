package models

import "time"

// OutcomeSuccess marks a completed backup run; failed runs record the
// ErrorKind string instead.
const OutcomeSuccess = "success"

// JobExecution is the append-only record of one backup trigger. On success
// it carries the reference of the artifact written to the remote.
type JobExecution struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	AppName          string    `gorm:"index;not null" json:"app"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Outcome          string    `gorm:"not null" json:"outcome"`
	Detail           string    `json:"detail,omitempty"`
	ArtifactName     string    `json:"artifact_name,omitempty"`
	ArtifactSize     int64     `json:"artifact_size,omitempty"`
	ArtifactChecksum string    `json:"artifact_checksum,omitempty"`
}

// Succeeded reports whether the run completed without a failure kind.
func (e *JobExecution) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}
