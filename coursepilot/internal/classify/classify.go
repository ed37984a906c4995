// CLAUDE:SUMMARY Two-tier element classifier (keywords then structural selectors) parameterised by a Profile; complete and next are two profiles.
// Package classify finds the control a scan should activate. Content
// signals (text, aria-label, title) win over structural selectors.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/dom"
)

// Kind names a target control.
type Kind string

const (
	KindComplete Kind = "complete"
	KindNext     Kind = "next"
)

// Tier says how a match was found.
type Tier int

const (
	TierNone Tier = iota
	TierContent
	TierSelector
)

func (t Tier) String() string {
	switch t {
	case TierContent:
		return "content"
	case TierSelector:
		return "selector"
	default:
		return "none"
	}
}

// Profile parameterises a Classifier.
type Profile struct {
	Kind          Kind     `yaml:"kind" json:"kind"`
	Label         string   `yaml:"label" json:"label"`
	TextKeywords  []string `yaml:"text_keywords" json:"textKeywords"`
	LabelKeywords []string `yaml:"label_keywords" json:"labelKeywords"`
	TitleKeywords []string `yaml:"title_keywords" json:"titleKeywords"`
	Selectors     []string `yaml:"selectors" json:"selectors"`
}

// CompleteProfile targets "mark as complete" controls.
func CompleteProfile() Profile {
	return Profile{
		Kind:          KindComplete,
		Label:         "Mark as Complete",
		TextKeywords:  []string{"mark as complete", "mark complete", "complete", "finish", "done", "submit"},
		LabelKeywords: []string{"complete", "finish", "submit"},
		TitleKeywords: []string{"complete", "finish"},
		Selectors: []string{
			`[id*="complete"]`, `[id*="submit"]`, `[id*="finish"]`,
			`[class*="complete"]`, `[class*="submit"]`, `[class*="finish"]`,
			`.btn-success`, `.btn-primary`, `.submit-btn`,
		},
	}
}

// NextProfile targets "next" navigation controls.
func NextProfile() Profile {
	return Profile{
		Kind:          KindNext,
		Label:         "Next",
		TextKeywords:  []string{"next", "التالي", "اگلا", "continue", "proceed"},
		LabelKeywords: []string{"next", "التالي"},
		TitleKeywords: []string{"next"},
		Selectors: []string{
			`[id*="next"]`, `[class*="next"]`, `.btn-next`, `.next-btn`,
			`.navigation button:last-child`, `.pagination-next`,
		},
	}
}

// Match is a classified element.
type Match struct {
	Element  dom.Element
	Tier     Tier
	Selector string
}

// Classifier applies one Profile to a document.
type Classifier struct {
	profile Profile
	logger  *slog.Logger
}

// New builds a Classifier. Keywords are lowercased once here.
func New(p Profile, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	p.TextKeywords = lower(p.TextKeywords)
	p.LabelKeywords = lower(p.LabelKeywords)
	p.TitleKeywords = lower(p.TitleKeywords)
	return &Classifier{profile: p, logger: logger}
}

// Profile returns the normalized profile.
func (c *Classifier) Profile() Profile { return c.profile }

// Find returns the first content match in document order, else the first
// element of the first matching selector. Lookup failures only narrow the
// search; Find never fails.
func (c *Classifier) Find(ctx context.Context, doc dom.Document) (Match, bool) {
	cands, err := doc.Candidates(ctx)
	if err != nil {
		c.logger.Warn("classify: candidates", "kind", c.profile.Kind, "error", err)
	}
	for _, el := range cands {
		if c.MatchesContent(el.Describe()) {
			return Match{Element: el, Tier: TierContent}, true
		}
	}

	for _, sel := range c.profile.Selectors {
		el, err := doc.First(ctx, sel)
		if err != nil {
			if errors.Is(err, dom.ErrInvalidSelector) {
				c.logger.Debug("classify: selector skipped", "kind", c.profile.Kind, "selector", sel, "error", err)
			} else {
				c.logger.Warn("classify: selector lookup", "kind", c.profile.Kind, "selector", sel, "error", err)
			}
			continue
		}
		if el != nil {
			return Match{Element: el, Tier: TierSelector, Selector: sel}, true
		}
	}
	return Match{}, false
}

// MatchesContent applies the keyword tier to one description.
func (c *Classifier) MatchesContent(d dom.Description) bool {
	d = d.Normalized()
	return containsAny(d.Text, c.profile.TextKeywords) ||
		containsAny(d.AriaLabel, c.profile.LabelKeywords) ||
		containsAny(d.Title, c.profile.TitleKeywords)
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
