// Package model defines the lead and campaign records shared by every layer.
package model

import (
	"slices"
	"time"
)

// Status is the workflow stage of a lead.
type Status string

const (
	StatusNew        Status = "new"
	StatusContacted  Status = "contacted"
	StatusInterested Status = "interested"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
	StatusOutdated   Status = "outdated"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{
	StatusNew,
	StatusContacted,
	StatusInterested,
	StatusClosed,
	StatusRejected,
	StatusOutdated,
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// PhoneType classifies a lead's phone number.
type PhoneType string

const (
	PhoneMobile   PhoneType = "mobile"
	PhoneLandline PhoneType = "landline"
	PhoneUnknown  PhoneType = "unknown"
)

// Lead is a mined business with contact info and a workflow status.
type Lead struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	WhatsAppURL  string     `json:"whatsappUrl"`
	Instagram    string     `json:"instagram,omitempty"`
	Website      string     `json:"website,omitempty"`
	Email        string     `json:"email,omitempty"`
	Facebook     string     `json:"facebook,omitempty"`
	Status       Status     `json:"status"`
	Neighborhood string     `json:"neighborhood"`
	Type         PhoneType  `json:"type"`
	Notes        string     `json:"notes,omitempty"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
	CampaignID   string     `json:"campaignId,omitempty"`
}

// LeadKey is the uniqueness key of a lead inside the merged set.
type LeadKey struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaignId"`
}

// Key returns the (id, campaignId) pair identifying l.
func (l Lead) Key() LeadKey {
	return LeadKey{ID: l.ID, CampaignID: l.CampaignID}
}

// SeenAt returns LastSeenAt, or the zero time when it was never stamped.
func (l Lead) SeenAt() time.Time {
	if l.LastSeenAt == nil {
		return time.Time{}
	}
	return *l.LastSeenAt
}

// Source is a grounding citation returned alongside search results.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
