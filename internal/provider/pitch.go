package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-miner/internal/model"
)

// PitchWriter drafts a short first-contact message for a lead.
type PitchWriter interface {
	Pitch(ctx context.Context, s Settings, lead model.Lead, niche string) (string, error)
}

const pitchSystemPrompt = `You write short WhatsApp first-contact messages in Brazilian Portuguese
for a small digital agency. Be friendly and specific, at most 60 words, no hashtags,
no emojis beyond one. Reply with the message text only.`

// Pitch uses the secondary provider when its key is set and the primary
// one otherwise.
func (r *Router) Pitch(ctx context.Context, s Settings, lead model.Lead, niche string) (string, error) {
	c := completion{
		system:   pitchSystemPrompt,
		prompt:   pitchPrompt(lead, niche),
		provider: Primary,
	}
	if s.SecondaryKey != "" {
		c.provider = Secondary
	}

	text, _, err := r.complete(ctx, s, c)
	if err != nil {
		return "", err
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return "", &Error{Provider: string(c.provider), Kind: ErrProviderUnexpected, Err: eris.New("provider: empty pitch")}
	}
	return text, nil
}

func pitchPrompt(lead model.Lead, niche string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s (%s)", lead.Name, niche)
	if lead.Neighborhood != "" {
		fmt.Fprintf(&b, "\nNeighborhood: %s", lead.Neighborhood)
	}
	switch {
	case lead.Website == "" && lead.Instagram == "":
		b.WriteString("\nThey have no website or Instagram we could find.")
	case lead.Website == "":
		b.WriteString("\nThey have Instagram but no website.")
	default:
		b.WriteString("\nThey already have a website.")
	}
	return b.String()
}
