package domain

import "time"

// TraitScore is the persisted per-trait row of a finished run.
type TraitScore struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	SubjectID   string    `json:"subject_id,omitempty"`
	Trait       Trait     `json:"trait"`
	Mean        float64   `json:"mean"`
	Scaled      float64   `json:"scaled"` // 0-100
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sample_count"`
	Degraded    bool      `json:"degraded"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
