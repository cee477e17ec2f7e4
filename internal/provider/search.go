package provider

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
)

// Location is an optional geolocation hint for the search.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Query is one business search: a niche in one neighborhood of a city.
type Query struct {
	Niche        string
	City         string
	Neighborhood string
	DeepSearch   bool
	Location     *Location
}

// Batch is the result of one search.
type Batch struct {
	Leads   []model.Lead
	Sources []model.Source
}

// business is the shape requested from the model.
type business struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Instagram    string `json:"instagram"`
	Website      string `json:"website"`
	Email        string `json:"email"`
	Facebook     string `json:"facebook"`
	Neighborhood string `json:"neighborhood"`
}

type businessList struct {
	Businesses []business `json:"businesses"`
}

// UnmarshalJSON accepts either {"businesses": [...]} or a bare array.
func (b *businessList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &b.Businesses)
	}
	type plain businessList
	return json.Unmarshal(data, (*plain)(b))
}

// toLeads turns parsed businesses into candidate leads. Entries without a
// name are dropped; phones that do not normalize are cleared.
func toLeads(list []business, q Query, includeNeighborhood bool) []model.Lead {
	leads := make([]model.Lead, 0, len(list))
	for _, b := range list {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		phone := identity.NormalizePhone(b.Phone)
		neighborhood := strings.TrimSpace(b.Neighborhood)
		if neighborhood == "" {
			neighborhood = q.Neighborhood
		}

		idNeighborhood := ""
		if includeNeighborhood {
			idNeighborhood = neighborhood
		}

		leads = append(leads, model.Lead{
			ID:           identity.DeriveLeadID(name, phone, idNeighborhood),
			Name:         name,
			Phone:        phone,
			WhatsAppURL:  identity.WhatsAppURL(phone),
			Instagram:    strings.TrimSpace(b.Instagram),
			Website:      strings.TrimSpace(b.Website),
			Email:        strings.TrimSpace(b.Email),
			Facebook:     strings.TrimSpace(b.Facebook),
			Status:       model.StatusNew,
			Neighborhood: neighborhood,
			Type:         identity.ClassifyPhone(phone),
		})
	}
	return leads
}
