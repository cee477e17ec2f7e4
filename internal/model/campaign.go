package model

import "time"

// Campaign is a saved (niche, city) mining configuration. After
// reconciliation it acts as the folder for every lead of its niche.
type Campaign struct {
	ID         string    `json:"id"`
	Niche      string    `json:"niche"`
	City       string    `json:"city"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSyncAt time.Time `json:"lastSyncAt"`
}

// Snapshot holds both collections as loaded from a replica or as published
// by the reconciliation engine. A published Snapshot is never mutated.
type Snapshot struct {
	Campaigns []Campaign `json:"campaigns"`
	Leads     []Lead     `json:"leads"`
}

// Empty reports whether the snapshot holds no records at all.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Campaigns) == 0 && len(s.Leads) == 0)
}

// CloudStatus describes the connectivity of the remote replica.
type CloudStatus string

const (
	CloudSynced   CloudStatus = "synced"
	CloudSyncing  CloudStatus = "syncing"
	CloudOffline  CloudStatus = "offline"
	CloudDisabled CloudStatus = "disabled"
)
