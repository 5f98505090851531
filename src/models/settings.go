package models

import "time"

// Setting is a target weight for one symbol of a portfolio.
type Setting struct {
	Stock        string    `json:"stock"`
	TargetWeight float64   `json:"target_weight"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// SettingsWriteResult is returned by a batch settings write.
type SettingsWriteResult struct {
	Settings    []Setting                  `json:"settings"`
	Applied     bool                       `json:"applied"`
	Warning     *WeightExceedsTotalWarning `json:"warning,omitempty"`
	TotalWeight float64                    `json:"total_weight"`
	Normalized  bool                       `json:"normalized"`
}
