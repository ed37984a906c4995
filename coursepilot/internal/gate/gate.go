// Package gate decides whether an element can be activated and, when it
// cannot, forces it into an activatable state once.
package gate

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/dom"
)

// DisabledClasses are framework class names that mark a control disabled.
var DisabledClasses = []string{"disabled", "Mui-disabled", "is-disabled", "btn-disabled", "ant-btn-disabled"}

// Reason explains a rejection. The empty Reason means accepted.
type Reason string

const (
	Accepted        Reason = ""
	ReasonDisabled  Reason = "disabled"
	ReasonAria      Reason = "aria-disabled"
	ReasonClass     Reason = "disabled-class"
	ReasonPointer   Reason = "pointer-events"
	ReasonOpacity   Reason = "opacity"
	ReasonCursor    Reason = "cursor"
	ReasonDisplay   Reason = "display"
	ReasonHidden    Reason = "visibility"
	ReasonZeroSize  Reason = "zero-size"
	ReasonOffscreen Reason = "offscreen"
	ReasonInspect   Reason = "inspect-failed"
)

// Heuristics toggles the rules that are known to misfire.
type Heuristics struct {
	// RejectOffscreen rejects a negative top or left. Scrolled pages put
	// valid controls there.
	RejectOffscreen bool `yaml:"reject_offscreen"`
	// RequireFullOpacity rejects any opacity below 1, not only 0.5.
	RequireFullOpacity bool `yaml:"require_full_opacity"`
}

// DefaultHeuristics enables every rule.
func DefaultHeuristics() Heuristics {
	return Heuristics{RejectOffscreen: true, RequireFullOpacity: true}
}

// Gate applies the clickability rules.
type Gate struct {
	h      Heuristics
	logger *slog.Logger
}

// New creates a Gate.
func New(h Heuristics, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{h: h, logger: logger}
}

// Verdict judges a rendering.
func (g *Gate) Verdict(r dom.Rendering) (bool, Reason) {
	if r.Disabled {
		return false, ReasonDisabled
	}
	if r.AriaDisabled == "true" {
		return false, ReasonAria
	}
	for _, c := range DisabledClasses {
		if r.HasClass(c) {
			return false, ReasonClass
		}
	}
	if r.PointerEvents == "none" {
		return false, ReasonPointer
	}
	if r.Opacity == "0.5" {
		return false, ReasonOpacity
	}
	if g.h.RequireFullOpacity {
		if op, err := strconv.ParseFloat(strings.TrimSpace(r.Opacity), 64); err == nil && op < 1 {
			return false, ReasonOpacity
		}
	}
	if r.Cursor == "not-allowed" {
		return false, ReasonCursor
	}
	if r.Display == "none" {
		return false, ReasonDisplay
	}
	if r.Visibility == "hidden" {
		return false, ReasonHidden
	}
	if r.Box.Width == 0 || r.Box.Height == 0 {
		return false, ReasonZeroSize
	}
	if g.h.RejectOffscreen && (r.Box.Y < 0 || r.Box.X < 0) {
		return false, ReasonOffscreen
	}
	return true, Accepted
}

// IsActivatable inspects el and judges it. Inspection failures reject.
func (g *Gate) IsActivatable(ctx context.Context, el dom.Element) (bool, Reason) {
	r, err := el.Inspect(ctx)
	if err != nil {
		g.logger.Debug("gate: inspect failed", "error", err)
		return false, ReasonInspect
	}
	return g.Verdict(r)
}

// ForcePatch is the mutation ForceActivatable applies.
func ForcePatch() dom.Patch {
	return dom.Patch{
		ClearDisabled:    true,
		RemoveAttributes: []string{"disabled", "aria-disabled"},
		RemoveClasses:    DisabledClasses,
		Style: map[string]string{
			"pointer-events": "auto",
			"cursor":         "pointer",
			"opacity":        "1",
		},
	}
}

// ForceActivatable strips disabled state and overrides the blocking styles.
// The result is not verified.
func (g *Gate) ForceActivatable(ctx context.Context, el dom.Element) (dom.Element, error) {
	if err := el.Apply(ctx, ForcePatch()); err != nil {
		return nil, err
	}
	return el, nil
}

// Clear checks el once and forces it once when rejected. It returns false
// only when forcing could not be applied; a forced element is never
// re-checked.
func (g *Gate) Clear(ctx context.Context, el dom.Element) (dom.Element, bool) {
	ok, reason := g.IsActivatable(ctx, el)
	if ok {
		return el, true
	}
	g.logger.Debug("gate: forcing", "reason", string(reason), "text", el.Describe().Text)
	forced, err := g.ForceActivatable(ctx, el)
	if err != nil {
		g.logger.Warn("gate: force failed", "reason", string(reason), "error", err)
		return nil, false
	}
	return forced, true
}
