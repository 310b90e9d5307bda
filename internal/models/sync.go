package models

import "time"

// SyncResult 一次同步周期的结果
type SyncResult struct {
	Uploaded   int       `json:"uploaded"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SyncStatus 缓存的同步状态（最近一次结果 + 待同步数量）
type SyncStatus struct {
	LastResult *SyncResult  `json:"last_result,omitempty"`
	Pending    PendingCount `json:"pending"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// PendingCount 各类待同步记录数
type PendingCount struct {
	Patients int `json:"patients"`
	Visits   int `json:"visits"`
	Audit    int `json:"audit"`
}

// Total 合计
func (p PendingCount) Total() int {
	return p.Patients + p.Visits + p.Audit
}
