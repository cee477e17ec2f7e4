package mining

import (
	"github.com/sells-group/lead-miner/internal/model"
	"github.com/sells-group/lead-miner/internal/provider"
)

// State is the orchestrator's run state.
type State string

const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StateCompleted        State = "completed"
	StateHaltedRateLimit  State = "halted_rate_limit"
	StateHaltedCredential State = "halted_credential"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateHaltedRateLimit, StateHaltedCredential, StateCancelled:
		return true
	}
	return false
}

const (
	msgRateLimited = "the search provider is rate limiting us; come back later"
	msgCredential  = "the search provider rejected the credentials; check the api keys in the configuration"
	msgCancelled   = "mining cancelled"
)

// haltFor maps a classified error to the terminal state it forces, if any.
func haltFor(err error) (State, string, bool) {
	switch provider.Classify(err) {
	case provider.KindRateLimited:
		return StateHaltedRateLimit, msgRateLimited, true
	case provider.KindCredential:
		return StateHaltedCredential, msgCredential, true
	}
	return "", "", false
}

// Request describes one mining run.
type Request struct {
	Niche string
	City  string
	// Neighborhoods to search; empty means every neighborhood the lookup
	// knows for City.
	Neighborhoods []string
	DeepSearch    bool
	Location      *provider.Location
}

// Counters are cumulative over a run.
type Counters struct {
	New      int `json:"new"`
	Skipped  int `json:"skipped"`
	Mobile   int `json:"mobile"`
	Landline int `json:"landline"`
}

func (c *Counters) add(f Counters) {
	c.New += f.New
	c.Skipped += f.Skipped
	c.Mobile += f.Mobile
	c.Landline += f.Landline
}

// Progress is published to observers after every neighborhood.
type Progress struct {
	State        State          `json:"state"`
	CampaignID   string         `json:"campaignId,omitempty"`
	Index        int            `json:"index"`
	Total        int            `json:"total"`
	Neighborhood string         `json:"neighborhood,omitempty"`
	Counters     Counters       `json:"counters"`
	Sources      []model.Source `json:"sources,omitempty"`
	// Leads is the full lead set after this step.
	Leads   []model.Lead `json:"-"`
	Message string       `json:"message,omitempty"`
	Err     error        `json:"-"`
}

// Observer receives progress updates. It is called synchronously from the
// mining loop and must not block.
type Observer func(Progress)

// StepError records a neighborhood whose search or persist failed without
// halting the run.
type StepError struct {
	Neighborhood string `json:"neighborhood"`
	Err          error  `json:"-"`
	Message      string `json:"message"`
}

// Result summarizes a finished run.
type Result struct {
	State    State          `json:"state"`
	Campaign model.Campaign `json:"campaign"`
	Searched int            `json:"searched"`
	Total    int            `json:"total"`
	Counters Counters       `json:"counters"`
	Sources  []model.Source `json:"sources,omitempty"`
	Errors   []StepError    `json:"errors,omitempty"`
	Message  string         `json:"message,omitempty"`
	// ShowResults is set when the run completed and found at least one new
	// lead.
	ShowResults bool `json:"showResults"`
}
