// Package reconcile merges the local and remote replicas into one canonical
// state and owns that state for the rest of the session.
package reconcile

import (
	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
)

// MergeResult is the canonical state produced by MergeReplicas.
type MergeResult struct {
	Campaigns []model.Campaign
	Leads     []model.Lead

	// RemovedCampaignIDs lists campaigns collapsed into a canonical one.
	RemovedCampaignIDs []string
	// Remap maps each removed campaign id to its canonical id.
	Remap map[string]string
}

// MergeReplicas unions both replicas (remote wins on id collisions), collapses
// campaigns that share a niche key into the first one seen, moves their leads
// to it, and deduplicates leads by (id, campaignId).
//
// Iteration order is local order followed by remote-only records in remote
// order. A record present in both keeps its local position.
func MergeReplicas(localCampaigns []model.Campaign, localLeads []model.Lead, remoteCampaigns []model.Campaign, remoteLeads []model.Lead) MergeResult {
	campaigns := unionCampaigns(localCampaigns, remoteCampaigns)
	leads := unionLeads(localLeads, remoteLeads)

	survivors, removed, remap := collapseCampaigns(campaigns)

	for i := range leads {
		if canonical, ok := remap[leads[i].CampaignID]; ok {
			leads[i].CampaignID = canonical
		}
	}

	return MergeResult{
		Campaigns:          survivors,
		Leads:              dedupLeads(leads),
		RemovedCampaignIDs: removed,
		Remap:              remap,
	}
}

func unionCampaigns(local, remote []model.Campaign) []model.Campaign {
	pos := make(map[string]int, len(local)+len(remote))
	out := make([]model.Campaign, 0, len(local)+len(remote))
	for _, side := range [][]model.Campaign{local, remote} {
		for _, c := range side {
			if i, ok := pos[c.ID]; ok {
				out[i] = c
				continue
			}
			pos[c.ID] = len(out)
			out = append(out, c)
		}
	}
	return out
}

func unionLeads(local, remote []model.Lead) []model.Lead {
	pos := make(map[model.LeadKey]int, len(local)+len(remote))
	out := make([]model.Lead, 0, len(local)+len(remote))
	for _, side := range [][]model.Lead{local, remote} {
		for _, l := range side {
			k := l.Key()
			if i, ok := pos[k]; ok {
				out[i] = l
				continue
			}
			pos[k] = len(out)
			out = append(out, l)
		}
	}
	return out
}

// collapseCampaigns keeps the first campaign of each niche key. The survivor
// takes the earliest createdAt and latest lastSyncAt of its group.
func collapseCampaigns(campaigns []model.Campaign) (survivors []model.Campaign, removed []string, remap map[string]string) {
	remap = make(map[string]string)
	canonical := make(map[string]int, len(campaigns))

	for _, c := range campaigns {
		key := identity.CampaignKey(c.Niche)
		i, ok := canonical[key]
		if !ok {
			canonical[key] = len(survivors)
			survivors = append(survivors, c)
			continue
		}

		keep := &survivors[i]
		if keep.ID == c.ID {
			continue
		}
		remap[c.ID] = keep.ID
		removed = append(removed, c.ID)
		if !c.CreatedAt.IsZero() && (keep.CreatedAt.IsZero() || c.CreatedAt.Before(keep.CreatedAt)) {
			keep.CreatedAt = c.CreatedAt
		}
		if c.LastSyncAt.After(keep.LastSyncAt) {
			keep.LastSyncAt = c.LastSyncAt
		}
	}
	return survivors, removed, remap
}

// dedupLeads collapses leads by key. The last occurrence wins; its empty
// optional fields are filled from the earlier one.
func dedupLeads(leads []model.Lead) []model.Lead {
	pos := make(map[model.LeadKey]int, len(leads))
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		k := l.Key()
		if i, ok := pos[k]; ok {
			out[i] = fillFrom(l, out[i])
			continue
		}
		pos[k] = len(out)
		out = append(out, l)
	}
	return out
}

func fillFrom(winner, loser model.Lead) model.Lead {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&winner.Phone, loser.Phone)
	fill(&winner.WhatsAppURL, loser.WhatsAppURL)
	fill(&winner.Instagram, loser.Instagram)
	fill(&winner.Website, loser.Website)
	fill(&winner.Email, loser.Email)
	fill(&winner.Facebook, loser.Facebook)
	fill(&winner.Neighborhood, loser.Neighborhood)
	fill(&winner.Notes, loser.Notes)
	if loser.SeenAt().After(winner.SeenAt()) {
		winner.LastSeenAt = loser.LastSeenAt
	}
	return winner
}
