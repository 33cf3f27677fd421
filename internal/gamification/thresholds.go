package gamification

import (
	"fmt"
	"sort"
)

type BadgeType string

const (
	BadgeNovice   BadgeType = "novice"
	BadgeExplorer BadgeType = "explorer"
	BadgeMaster   BadgeType = "master"
)

type Tier struct {
	Type        BadgeType
	Required    int64
	Name        string
	Description string
}

// Thresholds is an immutable, ascending list of tiers.
type Thresholds struct {
	tiers []Tier
}

func NewThresholds(tiers ...Tier) (Thresholds, error) {
	if len(tiers) == 0 {
		return Thresholds{}, fmt.Errorf("thresholds: at least one tier required")
	}
	seen := make(map[BadgeType]bool, len(tiers))
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Type == "" {
			return Thresholds{}, fmt.Errorf("thresholds: empty badge type")
		}
		if t.Required <= 0 {
			return Thresholds{}, fmt.Errorf("thresholds: %s requires a positive count, got %d", t.Type, t.Required)
		}
		if seen[t.Type] {
			return Thresholds{}, fmt.Errorf("thresholds: duplicate badge type %s", t.Type)
		}
		seen[t.Type] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Required < out[j].Required })
	return Thresholds{tiers: out}, nil
}

func DefaultThresholds() Thresholds {
	t, err := NewThresholds(
		Tier{Type: BadgeNovice, Required: 10, Name: "Novice Learner", Description: "Awarded after 10 interactions with the chatbot"},
		Tier{Type: BadgeExplorer, Required: 50, Name: "Knowledge Explorer", Description: "Awarded after 50 interactions with the chatbot"},
		Tier{Type: BadgeMaster, Required: 100, Name: "Learning Master", Description: "Awarded after 100 interactions with the chatbot"},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Tiers returns a copy in ascending order of required count.
func (t Thresholds) Tiers() []Tier {
	return append([]Tier(nil), t.tiers...)
}

func (t Thresholds) Len() int { return len(t.tiers) }

func (t Thresholds) Lookup(bt BadgeType) (Tier, bool) {
	for _, tier := range t.tiers {
		if tier.Type == bt {
			return tier, true
		}
	}
	return Tier{}, false
}
