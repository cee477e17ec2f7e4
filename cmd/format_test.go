package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-miner/internal/export"
	"github.com/sells-group/lead-miner/internal/lifecycle"
	"github.com/sells-group/lead-miner/internal/mining"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/reconcile"
)

func TestFormatProgress(t *testing.T) {
	var buf bytes.Buffer

	formatProgress(&buf, mining.Progress{State: mining.StateRunning, Total: 3})
	formatProgress(&buf, mining.Progress{State: mining.StateRunning, Index: 1, Total: 3, Neighborhood: "Moema", Counters: mining.Counters{New: 4, Skipped: 1}})
	formatProgress(&buf, mining.Progress{State: mining.StateRunning, Index: 2, Total: 3, Neighborhood: "Pinheiros", Err: errors.New("bad reply")})
	formatProgress(&buf, mining.Progress{State: mining.StateHaltedRateLimit, Message: "come back later"})

	assert.Equal(t, "Mining 3 neighborhood(s)...\n"+
		"[1/3] Moema: 4 new so far, 1 skipped\n"+
		"[2/3] Pinheiros: 0 new so far, 0 skipped (error: bad reply)\n"+
		"come back later\n", buf.String())
}

func TestFormatResult(t *testing.T) {
	var buf bytes.Buffer
	formatResult(&buf, &mining.Result{
		State:    mining.StateCompleted,
		Campaign: model.Campaign{ID: "c1", Niche: "PIZZARIA"},
		Searched: 2,
		Total:    2,
		Counters: mining.Counters{New: 5, Skipped: 2, Mobile: 3, Landline: 2},
		Sources:  []model.Source{{Title: "Guia", URI: "https://guia.example/pizza"}},
		Errors:   []mining.StepError{{Neighborhood: "Moema", Message: "timeout"}},
	})

	out := buf.String()
	assert.Contains(t, out, "State:         completed")
	assert.Contains(t, out, "Folder:        PIZZARIA (c1)")
	assert.Contains(t, out, "New leads:     5 (3 mobile, 2 landline)")
	assert.Contains(t, out, "Error:         Moema: timeout")
	assert.Contains(t, out, "  https://guia.example/pizza")
}

func TestFormatCampaigns(t *testing.T) {
	ts := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatCampaigns(&buf, []model.Campaign{{ID: "c1", Niche: "PIZZARIA", City: "São Paulo", CreatedAt: ts, LastSyncAt: ts}})

	out := buf.String()
	assert.Contains(t, out, "NICHE")
	assert.Contains(t, out, "PIZZARIA")
	assert.Contains(t, out, "2025-06-15 10:30")
}

func TestFormatFolders(t *testing.T) {
	var buf bytes.Buffer
	formatFolders(&buf, []lifecycle.Folder{{
		Niche:    "PIZZARIA",
		Cities:   []string{"São Paulo", "Campinas"},
		Total:    3,
		ByStatus: map[model.Status]int{model.StatusNew: 2, model.StatusClosed: 1},
	}})

	out := buf.String()
	assert.Contains(t, out, "CONTACTED")
	assert.Contains(t, out, "São Paulo, Campinas")
}

func TestFormatCleanup(t *testing.T) {
	var buf bytes.Buffer
	formatCleanup(&buf, &lifecycle.CleanupResult{}, false)
	assert.Equal(t, "No duplicate phones found.\n", buf.String())

	buf.Reset()
	res := &lifecycle.CleanupResult{Found: 1, Duplicates: []model.Lead{{ID: "b", Name: "Bella Pizza", Phone: "11999990001"}}}
	formatCleanup(&buf, res, false)
	assert.Contains(t, buf.String(), "Bella Pizza")
	assert.Contains(t, buf.String(), "--confirm")

	buf.Reset()
	res.Deleted = 1
	formatCleanup(&buf, res, true)
	assert.Contains(t, buf.String(), "Deleted 1 duplicate(s).")
}

func TestFormatPush(t *testing.T) {
	var buf bytes.Buffer
	formatPush(&buf, "Salesforce", &export.PushSummary{Created: 2, Updated: 1, Failed: []string{"DUPLICATE_VALUE"}})
	assert.Equal(t, "Salesforce: 2 created, 1 updated, 1 failed\n  DUPLICATE_VALUE\n", buf.String())
}

func TestFormatSync(t *testing.T) {
	var buf bytes.Buffer
	formatSync(&buf, &reconcile.LoadReport{Campaigns: 2, Leads: 10, RemovedCampaigns: []string{"x"}}, model.CloudSynced)
	assert.Contains(t, buf.String(), "Merged 1 duplicate campaign(s)")
	assert.Contains(t, buf.String(), "Cloud:     synced")

	buf.Reset()
	formatSync(&buf, &reconcile.LoadReport{RemoteErr: errors.New("dial tcp")}, model.CloudSynced)
	assert.Contains(t, buf.String(), "Cloud:     offline")
}
