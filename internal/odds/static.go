package odds

import (
	"context"
	"sync"
)

// StaticProvider implements Provider from in-memory fixtures. Used for
// testing and development when no API key is configured.
type StaticProvider struct {
	mu     sync.RWMutex
	odds   map[string]*EventOdds // sportKey:externalID
	scores map[string][]EventScore
	err    error
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		odds:   make(map[string]*EventOdds),
		scores: make(map[string][]EventScore),
	}
}

// SetOdds installs the price set returned for one event.
func (p *StaticProvider) SetOdds(sportKey, externalID string, o *EventOdds) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.odds[oddsKey(sportKey, externalID)] = o
}

// SetScores installs the completion reports returned for one sport.
func (p *StaticProvider) SetScores(sportKey string, scores []EventScore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scores[sportKey] = scores
}

// Fail makes every subsequent call return err (nil restores normal
// operation).
func (p *StaticProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *StaticProvider) GetEventOdds(_ context.Context, sportKey, externalID string) (*EventOdds, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return nil, p.err
	}
	o, ok := p.odds[oddsKey(sportKey, externalID)]
	if !ok || o == nil {
		return nil, nil
	}
	cp := *o
	cp.Outcomes = append([]OutcomeOdds(nil), o.Outcomes...)
	return &cp, nil
}

func (p *StaticProvider) GetScores(_ context.Context, sportKey string) ([]EventScore, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return nil, p.err
	}
	return append([]EventScore(nil), p.scores[sportKey]...), nil
}
