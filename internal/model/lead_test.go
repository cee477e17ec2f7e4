package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range Statuses {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, Status("archived").Valid())
	assert.False(t, Status("").Valid())
}

func TestLeadKey(t *testing.T) {
	t.Parallel()

	l := Lead{ID: "pizzaria-88889999", CampaignID: "c1", Name: "Pizzaria"}
	assert.Equal(t, LeadKey{ID: "pizzaria-88889999", CampaignID: "c1"}, l.Key())
}

func TestLeadSeenAt(t *testing.T) {
	t.Parallel()

	assert.True(t, Lead{}.SeenAt().IsZero())

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, ts, Lead{LastSeenAt: &ts}.SeenAt())
}

func TestLeadJSONFieldNames(t *testing.T) {
	t.Parallel()

	l := Lead{
		ID:          "a",
		Name:        "Bar do Zé",
		Phone:       "11999998888",
		WhatsAppURL: "https://wa.me/5511999998888",
		Status:      StatusNew,
		Type:        PhoneMobile,
		CampaignID:  "c1",
	}
	data, err := json.Marshal(l)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "https://wa.me/5511999998888", raw["whatsappUrl"])
	assert.Equal(t, "c1", raw["campaignId"])
	assert.NotContains(t, raw, "lastSeenAt")
	assert.NotContains(t, raw, "notes")
}

func TestSnapshotEmpty(t *testing.T) {
	t.Parallel()

	var nilSnap *Snapshot
	assert.True(t, nilSnap.Empty())
	assert.True(t, (&Snapshot{}).Empty())
	assert.False(t, (&Snapshot{Campaigns: []Campaign{{ID: "1"}}}).Empty())
}
