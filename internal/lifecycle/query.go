package lifecycle

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
)

// maxNameDistance is the edit distance still accepted as a name match.
const maxNameDistance = 2

// minFuzzyQuery is the shortest query matched by edit distance.
const minFuzzyQuery = 4

// Folder summarizes the campaigns sharing one niche key.
type Folder struct {
	Niche       string               `json:"niche"`
	CampaignIDs []string             `json:"campaignIds"`
	Cities      []string             `json:"cities"`
	Total       int                  `json:"total"`
	ByStatus    map[model.Status]int `json:"byStatus"`
}

// Folders lists every folder in campaign order.
func (m *Manager) Folders() []Folder {
	snap := m.engine.Snapshot()

	var folders []Folder
	index := make(map[string]int)
	byCampaign := make(map[string]int)
	for _, c := range snap.Campaigns {
		key := identity.CampaignKey(c.Niche)
		i, ok := index[key]
		if !ok {
			i = len(folders)
			index[key] = i
			folders = append(folders, Folder{Niche: c.Niche, ByStatus: make(map[model.Status]int)})
		}
		f := &folders[i]
		f.CampaignIDs = append(f.CampaignIDs, c.ID)
		if c.City != "" && !containsFold(f.Cities, c.City) {
			f.Cities = append(f.Cities, c.City)
		}
		byCampaign[c.ID] = i
	}

	for _, l := range snap.Leads {
		i, ok := byCampaign[l.CampaignID]
		if !ok {
			continue
		}
		folders[i].Total++
		folders[i].ByStatus[l.Status]++
	}
	return folders
}

func containsFold(list []string, s string) bool {
	key := identity.NormalizeText(s)
	for _, v := range list {
		if identity.NormalizeText(v) == key {
			return true
		}
	}
	return false
}

// LeadFilter selects leads. Zero fields match everything.
type LeadFilter struct {
	Niche        string
	CampaignID   string
	Status       model.Status
	Neighborhood string
	// Query matches names loosely: normalized substring or a small edit
	// distance to the name or one of its words.
	Query string
}

// ListLeads returns the leads matching f in state order.
func (m *Manager) ListLeads(f LeadFilter) []model.Lead {
	snap := m.engine.Snapshot()

	var campaigns map[string]bool
	if key := identity.CampaignKey(f.Niche); key != "" {
		campaigns = make(map[string]bool)
		for _, c := range snap.Campaigns {
			if identity.CampaignKey(c.Niche) == key {
				campaigns[c.ID] = true
			}
		}
	}
	neighborhood := identity.NormalizeText(f.Neighborhood)
	query := identity.NormalizeText(f.Query)

	var out []model.Lead
	for _, l := range snap.Leads {
		switch {
		case campaigns != nil && !campaigns[l.CampaignID]:
			continue
		case f.CampaignID != "" && l.CampaignID != f.CampaignID:
			continue
		case f.Status != "" && l.Status != f.Status:
			continue
		case neighborhood != "" && identity.NormalizeText(l.Neighborhood) != neighborhood:
			continue
		case query != "" && !nameMatches(l.Name, query):
			continue
		}
		out = append(out, l)
	}
	return out
}

func nameMatches(name, query string) bool {
	norm := identity.NormalizeText(name)
	if strings.Contains(norm, query) {
		return true
	}
	if len(query) < minFuzzyQuery {
		return false
	}
	if levenshtein.ComputeDistance(norm, query) <= maxNameDistance {
		return true
	}
	for _, w := range strings.Fields(name) {
		if levenshtein.ComputeDistance(identity.NormalizeText(w), query) <= maxNameDistance {
			return true
		}
	}
	return false
}
