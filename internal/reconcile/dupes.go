package reconcile

import (
	"sort"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
)

// Scope narrows phone duplicate detection to one folder. The zero value is
// global.
type Scope struct {
	// Niche selects the folder; compared by identity.CampaignKey.
	Niche string
}

// Global reports whether the scope covers every lead.
func (s Scope) Global() bool {
	return identity.CampaignKey(s.Niche) == ""
}

// FindPhoneDuplicates returns the leads whose normalized phone was already
// seen on a more recently seen lead. Leads without a phone are never
// duplicates. Ties keep input order.
func FindPhoneDuplicates(leads []model.Lead) []model.Lead {
	ordered := append([]model.Lead(nil), leads...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SeenAt().After(ordered[j].SeenAt())
	})

	seen := make(map[string]struct{}, len(ordered))
	var dupes []model.Lead
	for _, l := range ordered {
		phone := identity.NormalizeText(l.Phone)
		if phone == "" {
			continue
		}
		if _, ok := seen[phone]; ok {
			dupes = append(dupes, l)
			continue
		}
		seen[phone] = struct{}{}
	}
	return dupes
}

// inScope filters leads to those whose campaign belongs to the scope's folder.
func inScope(snap *model.Snapshot, scope Scope) []model.Lead {
	if scope.Global() {
		return snap.Leads
	}
	key := identity.CampaignKey(scope.Niche)
	ids := make(map[string]bool)
	for _, c := range snap.Campaigns {
		if identity.CampaignKey(c.Niche) == key {
			ids[c.ID] = true
		}
	}
	var out []model.Lead
	for _, l := range snap.Leads {
		if ids[l.CampaignID] {
			out = append(out, l)
		}
	}
	return out
}
