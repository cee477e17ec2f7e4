package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/lead-miner/internal/export"
	"github.com/sells-group/lead-miner/internal/lifecycle"
	"github.com/sells-group/lead-miner/internal/mining"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/reconcile"
)

func formatProgress(w io.Writer, p mining.Progress) {
	switch {
	case p.State == mining.StateRunning && p.Neighborhood == "":
		fmt.Fprintf(w, "Mining %d neighborhood(s)...\n", p.Total)
	case p.State == mining.StateRunning:
		line := fmt.Sprintf("[%d/%d] %s: %d new so far, %d skipped", p.Index, p.Total, p.Neighborhood, p.Counters.New, p.Counters.Skipped)
		if p.Err != nil {
			line += " (error: " + p.Err.Error() + ")"
		}
		fmt.Fprintln(w, line)
	case p.Message != "":
		fmt.Fprintln(w, p.Message)
	}
}

func formatResult(w io.Writer, r *mining.Result) {
	fmt.Fprintf(w, "State:         %s\n", r.State)
	if r.Campaign.ID != "" {
		fmt.Fprintf(w, "Folder:        %s (%s)\n", r.Campaign.Niche, r.Campaign.ID)
	}
	fmt.Fprintf(w, "Neighborhoods: %d/%d\n", r.Searched, r.Total)
	fmt.Fprintf(w, "New leads:     %d (%d mobile, %d landline)\n", r.Counters.New, r.Counters.Mobile, r.Counters.Landline)
	fmt.Fprintf(w, "Skipped:       %d\n", r.Counters.Skipped)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "Error:         %s: %s\n", e.Neighborhood, e.Message)
	}
	if len(r.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range r.Sources {
			fmt.Fprintf(w, "  %s\n", s.URI)
		}
	}
	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
	}
}

func formatCampaigns(w io.Writer, campaigns []model.Campaign) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNICHE\tCITY\tCREATED\tLAST SYNC")
	for _, c := range campaigns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Niche, c.City,
			c.CreatedAt.Format("2006-01-02 15:04"),
			c.LastSyncAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

func formatFolders(w io.Writer, folders []lifecycle.Folder) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"NICHE", "CITIES", "TOTAL"}
	for _, s := range model.Statuses {
		header = append(header, strings.ToUpper(string(s)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, f := range folders {
		cols := []string{f.Niche, strings.Join(f.Cities, ", "), fmt.Sprint(f.Total)}
		for _, s := range model.Statuses {
			cols = append(cols, fmt.Sprint(f.ByStatus[s]))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	_ = tw.Flush()
}

func formatLeads(w io.Writer, leads []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMPAIGN\tID\tNAME\tPHONE\tTYPE\tNEIGHBORHOOD\tSTATUS")
	for _, l := range leads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.CampaignID, l.ID, l.Name, l.Phone, l.Type, l.Neighborhood, l.Status)
	}
	_ = tw.Flush()
}

func formatCleanup(w io.Writer, res *lifecycle.CleanupResult, confirm bool) {
	if res.Found == 0 {
		fmt.Fprintln(w, "No duplicate phones found.")
		return
	}
	formatLeads(w, res.Duplicates)
	if confirm {
		fmt.Fprintf(w, "Deleted %d duplicate(s).\n", res.Deleted)
		return
	}
	fmt.Fprintf(w, "Found %d duplicate(s). Run again with --confirm to delete them.\n", res.Found)
}

func formatPush(w io.Writer, target string, sum *export.PushSummary) {
	fmt.Fprintf(w, "%s: %d created, %d updated", target, sum.Created, sum.Updated)
	if len(sum.Failed) > 0 {
		fmt.Fprintf(w, ", %d failed", len(sum.Failed))
	}
	fmt.Fprintln(w)
	for _, f := range sum.Failed {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func formatSync(w io.Writer, r *reconcile.LoadReport, cloud model.CloudStatus) {
	fmt.Fprintf(w, "Campaigns: %d\n", r.Campaigns)
	fmt.Fprintf(w, "Leads:     %d\n", r.Leads)
	if len(r.RemovedCampaigns) > 0 {
		fmt.Fprintf(w, "Merged %d duplicate campaign(s) into their folders\n", len(r.RemovedCampaigns))
	}
	if r.RemoteErr != nil {
		cloud = model.CloudOffline
	}
	fmt.Fprintf(w, "Cloud:     %s\n", cloud)
}
