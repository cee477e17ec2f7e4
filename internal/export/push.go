package export

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/pkg/notion"
	"github.com/sells-group/lead-miner/pkg/salesforce"
)

// PushSummary counts the records created and updated by a CRM push.
type PushSummary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  []string `json:"failed,omitempty"`
}

// notionKeyProperty holds the lead key used to find existing rows.
const notionKeyProperty = "Lead ID"

// notionKey identifies a lead row across pushes.
func notionKey(l model.Lead) string {
	return l.CampaignID + "/" + l.ID
}

// PushNotion creates or updates one page per lead in a Notion database. The
// database needs the properties written by notionProperties.
func PushNotion(ctx context.Context, c notion.Client, dbID string, leads []model.Lead) (*PushSummary, error) {
	if len(leads) == 0 {
		return nil, ErrNoContacts
	}
	existing, err := notion.IndexByText(ctx, c, dbID, notionKeyProperty)
	if err != nil {
		return nil, eris.Wrap(err, "export: index notion database")
	}

	sum := &PushSummary{}
	for _, l := range leads {
		props := notionProperties(l)
		if pageID, ok := existing[notionKey(l)]; ok {
			_, err := c.UpdatePage(ctx, string(pageID), &notionapi.PageUpdateRequest{Properties: props})
			if err != nil {
				return sum, eris.Wrapf(err, "export: update notion page for %s", l.ID)
			}
			sum.Updated++
			continue
		}
		_, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		})
		if err != nil {
			return sum, eris.Wrapf(err, "export: create notion page for %s", l.ID)
		}
		sum.Created++
	}

	zap.L().Info("export: pushed leads to notion",
		zap.String("database_id", dbID),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
	)
	return sum, nil
}

// notionProperties maps a lead onto the database columns. Empty optional
// values are left out since Notion rejects empty url and email values.
func notionProperties(l model.Lead) notionapi.Properties {
	props := notionapi.Properties{
		"Name":            notion.Title(l.Name),
		notionKeyProperty: notion.RichText(notionKey(l)),
		"Status":          notion.Select(string(l.Status)),
		"Type":            notion.Select(string(l.Type)),
	}
	if l.Phone != "" {
		props["Phone"] = notion.Phone(identity.FormatE164(l.Phone))
	}
	if l.WhatsAppURL != "" {
		props["WhatsApp"] = notion.URL(l.WhatsAppURL)
	}
	if l.Website != "" {
		props["Website"] = notion.URL(l.Website)
	}
	if l.Email != "" {
		props["Email"] = notion.Email(l.Email)
	}
	if l.Neighborhood != "" {
		props["Neighborhood"] = notion.RichText(l.Neighborhood)
	}
	if l.Instagram != "" {
		props["Instagram"] = notion.RichText(l.Instagram)
	}
	if l.Notes != "" {
		props["Notes"] = notion.RichText(l.Notes)
	}
	return props
}

// leadSource tags Salesforce leads created by this tool.
const leadSource = "lead-miner"

// PushSalesforce upserts leads into the Lead sObject, matching existing
// records by E.164 phone. city fills the City field.
func PushSalesforce(ctx context.Context, c salesforce.Client, leads []model.Lead, city string) (*PushSummary, error) {
	if len(leads) == 0 {
		return nil, ErrNoContacts
	}

	phones := make([]string, 0, len(leads))
	for _, l := range leads {
		if p := identity.FormatE164(l.Phone); p != "" {
			phones = append(phones, p)
		}
	}
	existing, err := salesforce.LeadsByPhone(ctx, c, phones)
	if err != nil {
		return nil, eris.Wrap(err, "export: match salesforce leads")
	}

	records := make([]map[string]any, 0, len(leads))
	for _, l := range leads {
		rec := salesforceRecord(l, city)
		if id, ok := existing[identity.FormatE164(l.Phone)]; ok && l.Phone != "" {
			rec["Id"] = id
		}
		records = append(records, rec)
	}

	res, err := salesforce.UpsertLeads(ctx, c, records)
	if err != nil {
		return nil, eris.Wrap(err, "export: push salesforce leads")
	}
	sum := &PushSummary{Created: res.Created, Updated: res.Updated, Failed: res.Failed}

	zap.L().Info("export: pushed leads to salesforce",
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("failed", len(sum.Failed)),
	)
	return sum, nil
}

func salesforceRecord(l model.Lead, city string) map[string]any {
	rec := map[string]any{
		"LastName":   l.Name,
		"Company":    l.Name,
		"LeadSource": leadSource,
		"Country":    "Brazil",
	}
	if city != "" {
		rec["City"] = city
	}
	if phone := identity.FormatE164(l.Phone); phone != "" {
		rec["Phone"] = phone
		if l.Type == model.PhoneMobile {
			rec["MobilePhone"] = phone
		}
	}
	if l.Website != "" {
		rec["Website"] = l.Website
	}
	if l.Email != "" {
		rec["Email"] = l.Email
	}

	var desc []string
	if l.Neighborhood != "" {
		desc = append(desc, "Neighborhood: "+l.Neighborhood)
	}
	if l.Instagram != "" {
		desc = append(desc, "Instagram: "+l.Instagram)
	}
	if l.Notes != "" {
		desc = append(desc, l.Notes)
	}
	if len(desc) > 0 {
		rec["Description"] = strings.Join(desc, "\n")
	}
	return rec
}
