package odds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predikt/prediction-engine/internal/model"
)

// Client fetches odds and scores from a the-odds-api style HTTP provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client. baseURL is the API root, e.g.
// "https://api.the-odds-api.com".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiEvent mirrors the provider's odds payload: per-bookmaker h2h markets.
type apiEvent struct {
	ID         string `json:"id"`
	Bookmakers []struct {
		LastUpdate time.Time `json:"last_update"`
		Markets    []struct {
			MarketKey  string    `json:"key"`
			LastUpdate time.Time `json:"last_update"`
			Outcomes   []struct {
				Name  string          `json:"name"`
				Price decimal.Decimal `json:"price"`
			} `json:"outcomes"`
		} `json:"markets"`
	} `json:"bookmakers"`
}

// apiScore mirrors the provider's scores payload. Scores arrive as strings.
type apiScore struct {
	ID        string `json:"id"`
	Completed bool   `json:"completed"`
	Scores    []struct {
		Name  string `json:"name"`
		Score string `json:"score"`
	} `json:"scores"`
}

func (c *Client) GetEventOdds(ctx context.Context, sportKey, externalID string) (*EventOdds, error) {
	endpoint := fmt.Sprintf("%s/v4/sports/%s/odds", c.baseURL, url.PathEscape(sportKey))
	q := url.Values{
		"apiKey":   {c.apiKey},
		"eventIds": {externalID},
		"markets":  {"h2h"},
		"regions":  {"eu"},
	}

	var events []apiEvent
	if err := c.getJSON(ctx, endpoint+"?"+q.Encode(), &events); err != nil {
		return nil, err
	}

	for _, ev := range events {
		if ev.ID != externalID {
			continue
		}
		for _, bm := range ev.Bookmakers {
			for _, mkt := range bm.Markets {
				if mkt.MarketKey != "h2h" || len(mkt.Outcomes) == 0 {
					continue
				}
				out := &EventOdds{UpdatedAt: mkt.LastUpdate}
				if out.UpdatedAt.IsZero() {
					out.UpdatedAt = bm.LastUpdate
				}
				for _, o := range mkt.Outcomes {
					out.Outcomes = append(out.Outcomes, OutcomeOdds{Name: o.Name, Price: o.Price})
				}
				return out, nil
			}
		}
	}

	// No prices for this event right now. Not an error.
	return nil, nil
}

func (c *Client) GetScores(ctx context.Context, sportKey string) ([]EventScore, error) {
	endpoint := fmt.Sprintf("%s/v4/sports/%s/scores", c.baseURL, url.PathEscape(sportKey))
	q := url.Values{
		"apiKey":   {c.apiKey},
		"daysFrom": {"3"},
	}

	var raw []apiScore
	if err := c.getJSON(ctx, endpoint+"?"+q.Encode(), &raw); err != nil {
		return nil, err
	}

	scores := make([]EventScore, 0, len(raw))
	for _, r := range raw {
		es := EventScore{ID: r.ID, Completed: r.Completed}
		for _, s := range r.Scores {
			n, err := strconv.Atoi(s.Score)
			if err != nil {
				continue
			}
			es.Scores = append(es.Scores, SideScore{Name: s.Name, Score: n})
		}
		scores = append(scores, es)
	}
	return scores, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: provider returned status %d", model.ErrExternalUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %v", model.ErrExternalUnavailable, err)
	}
	return nil
}
