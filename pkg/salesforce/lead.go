package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// LeadObject is the standard sObject leads are pushed to.
const LeadObject = "Lead"

// soqlInLimit bounds the values in one IN clause.
const soqlInLimit = 100

// Lead is the subset of Lead fields read back when matching.
type Lead struct {
	ID    string `json:"Id" salesforce:"Id"`
	Phone string `json:"Phone" salesforce:"Phone"`
}

// LeadsByPhone returns the existing Lead id for every phone that matches one.
func LeadsByPhone(ctx context.Context, c Client, phones []string) (map[string]string, error) {
	out := make(map[string]string)
	for start := 0; start < len(phones); start += soqlInLimit {
		end := min(start+soqlInLimit, len(phones))

		quoted := make([]string, 0, end-start)
		for _, p := range phones[start:end] {
			if p == "" {
				continue
			}
			quoted = append(quoted, "'"+escapeSoql(p)+"'")
		}
		if len(quoted) == 0 {
			continue
		}

		soql := fmt.Sprintf("SELECT Id, Phone FROM Lead WHERE Phone IN (%s)", strings.Join(quoted, ", "))
		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, "sf: find leads by phone")
		}
		for _, l := range leads {
			if _, ok := out[l.Phone]; !ok {
				out[l.Phone] = l.ID
			}
		}
	}
	return out, nil
}

// UpsertSummary counts the outcome of UpsertLeads.
type UpsertSummary struct {
	Created int
	Updated int
	Failed  []string
}

// UpsertLeads updates the records carrying an "Id" and inserts the rest,
// in batches of the Collections API limit.
func UpsertLeads(ctx context.Context, c Client, records []map[string]any) (*UpsertSummary, error) {
	var (
		inserts []map[string]any
		updates []CollectionRecord
	)
	for _, r := range records {
		id, _ := r["Id"].(string)
		if id == "" {
			inserts = append(inserts, r)
			continue
		}
		fields := make(map[string]any, len(r))
		for k, v := range r {
			if k != "Id" {
				fields[k] = v
			}
		}
		updates = append(updates, CollectionRecord{ID: id, Fields: fields})
	}

	sum := &UpsertSummary{}
	for start := 0; start < len(inserts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(inserts))
		res, err := c.InsertCollection(ctx, LeadObject, inserts[start:end])
		if err != nil {
			return sum, eris.Wrapf(err, "sf: insert leads %d-%d", start, end)
		}
		sum.Created += sum.tally(res)
	}
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		res, err := c.UpdateCollection(ctx, LeadObject, updates[start:end])
		if err != nil {
			return sum, eris.Wrapf(err, "sf: update leads %d-%d", start, end)
		}
		sum.Updated += sum.tally(res)
	}
	return sum, nil
}

// tally records failures and returns the number of successes.
func (s *UpsertSummary) tally(res []CollectionResult) int {
	ok := 0
	for _, r := range res {
		if r.Success {
			ok++
			continue
		}
		s.Failed = append(s.Failed, strings.Join(r.Errors, "; "))
	}
	return ok
}

// escapeSoql escapes single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
