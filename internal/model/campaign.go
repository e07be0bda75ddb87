package model

import "time"

// Campaign is the server-owned outreach run. The client never mutates these
// fields directly; it requests transitions (start, stop) and re-reads the
// authoritative state from the backend.
type Campaign struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Message        string     `json:"message,omitempty"`
	Status         string     `json:"status"`
	TotalURLs      int        `json:"total_urls"`
	ProcessedCount int        `json:"processed_count"`
	SuccessCount   int        `json:"success_count"`
	FailCount      int        `json:"fail_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// ProgressSnapshot is one poll result. Each tick replaces the previous
// snapshot wholesale; nothing is merged and nothing is persisted client-side.
type ProgressSnapshot struct {
	CampaignID      string  `json:"campaign_id"`
	Total           int     `json:"total"`
	Processed       int     `json:"processed"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	Pending         int     `json:"pending"`
	ProgressPercent float64 `json:"progress_percent"`
	Status          string  `json:"status"`
}
