package provider

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-miner/internal/identity"
)

//go:embed neighborhoods.yaml
var neighborhoodsYAML []byte

// NeighborhoodLookup lists the neighborhoods of a city. An empty result
// means no data is available.
type NeighborhoodLookup interface {
	Neighborhoods(ctx context.Context, s Settings, city string) ([]string, error)
}

type neighborhoodTable map[string][]string

func newNeighborhoodTable(raw map[string][]string) neighborhoodTable {
	t := make(neighborhoodTable, len(raw))
	for city, list := range raw {
		t[identity.NormalizeText(city)] = list
	}
	return t
}

func embeddedNeighborhoods() neighborhoodTable {
	var raw map[string][]string
	if err := yaml.Unmarshal(neighborhoodsYAML, &raw); err != nil {
		zap.L().Error("provider: invalid embedded neighborhood table", zap.Error(err))
		return neighborhoodTable{}
	}
	return newNeighborhoodTable(raw)
}

func (t neighborhoodTable) lookup(city string) []string {
	list := t[identity.NormalizeText(city)]
	if len(list) == 0 {
		return nil
	}
	return append([]string(nil), list...)
}

const neighborhoodSystemPrompt = `You list neighborhoods of Brazilian cities.
Reply with JSON only: {"neighborhoods":["..."]}. Use an empty list when the city is unknown.`

// Neighborhoods returns the offline list for city when there is one and
// asks the active provider otherwise.
func (r *Router) Neighborhoods(ctx context.Context, s Settings, city string) ([]string, error) {
	if list := r.offline.lookup(city); list != nil {
		return list, nil
	}

	text, _, err := r.complete(ctx, s, completion{
		system: neighborhoodSystemPrompt,
		prompt: fmt.Sprintf("List the main commercial neighborhoods of %s, Brazil.", city),
	})
	if err != nil {
		return nil, err
	}

	var reply struct {
		Neighborhoods []string `json:"neighborhoods"`
	}
	if err := decodeReply(text, &reply); err != nil {
		return nil, &Error{Provider: string(s.Active()), Kind: ErrProviderUnexpected, Err: err}
	}

	seen := make(map[string]struct{}, len(reply.Neighborhoods))
	out := make([]string, 0, len(reply.Neighborhoods))
	for _, n := range reply.Neighborhoods {
		n = strings.TrimSpace(n)
		key := identity.NormalizeText(n)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
