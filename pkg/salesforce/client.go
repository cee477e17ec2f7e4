// Package salesforce pushes records into Salesforce over its REST API.
package salesforce

import (
	"context"
	"maps"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// maxBatchSize is the Collections API limit per request.
const maxBatchSize = 200

// Client is the subset of the Salesforce API the lead push needs.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error)
	UpdateCollection(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error)
}

// CollectionRecord is one record of a collection update.
type CollectionRecord struct {
	ID     string         `json:"Id"`
	Fields map[string]any `json:"fields"`
}

// CollectionResult is the outcome for one record of a collection call.
type CollectionResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// Config selects how to authenticate. An AccessToken skips the JWT flow.
type Config struct {
	LoginURL    string
	Username    string
	ClientID    string
	KeyPath     string
	AccessToken string
	// RateLimit caps API calls per second; zero disables the limit.
	RateLimit float64
}

// Connect authenticates and returns a Client.
func Connect(cfg Config) (Client, error) {
	creds := salesforce.Creds{Domain: cfg.LoginURL}
	switch {
	case cfg.AccessToken != "":
		creds.AccessToken = cfg.AccessToken
	case cfg.ClientID != "":
		pem, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "sf: read jwt private key")
		}
		creds.Username = cfg.Username
		creds.ConsumerKey = cfg.ClientID
		creds.ConsumerRSAPem = string(pem)
	default:
		return nil, eris.New("sf: client id or access token is required")
	}

	sf, err := salesforce.Init(creds)
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}
	return NewClient(sf, WithRateLimit(cfg.RateLimit)), nil
}

// ClientOption configures the client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second limit for API calls with a burst of the
// integer part of rps.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialized go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call waits for a rate-limit slot, then runs fn. go-salesforce takes no
// context, so ctx only bounds the wait.
func (c *sfClient) call(ctx context.Context, what string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "sf: %s: rate limit", what)
		}
	} else if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "sf: %s", what)
	}
	if err := fn(); err != nil {
		return eris.Wrapf(err, "sf: %s", what)
	}
	return nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	return c.call(ctx, "query", func() error { return c.sf.Query(soql, out) })
}

func (c *sfClient) InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
	var res salesforce.SalesforceResults
	err := c.call(ctx, "insert collection "+sObjectName, func() (err error) {
		res, err = c.sf.InsertCollection(sObjectName, records, maxBatchSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toResults(res), nil
}

func (c *sfClient) UpdateCollection(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error) {
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		row := maps.Clone(rec.Fields)
		if row == nil {
			row = make(map[string]any, 1)
		}
		row["Id"] = rec.ID
		rows[i] = row
	}

	var res salesforce.SalesforceResults
	err := c.call(ctx, "update collection "+sObjectName, func() (err error) {
		res, err = c.sf.UpdateCollection(sObjectName, rows, maxBatchSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toResults(res), nil
}

func toResults(res salesforce.SalesforceResults) []CollectionResult {
	out := make([]CollectionResult, len(res.Results))
	for i, r := range res.Results {
		var errs []string
		for _, e := range r.Errors {
			errs = append(errs, e.Message)
		}
		out[i] = CollectionResult{ID: r.Id, Success: r.Success, Errors: errs}
	}
	return out
}
