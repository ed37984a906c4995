package coursepilot

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/classify"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/dom"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/gate"
)

// TargetReport is what the classifier and the gate say about one target.
type TargetReport struct {
	Kind        string          `json:"kind"`
	Label       string          `json:"label"`
	Found       bool            `json:"found"`
	Tier        string          `json:"tier,omitempty"`
	Selector    string          `json:"selector,omitempty"`
	Element     dom.Description `json:"element"`
	Activatable bool            `json:"activatable"`
	Reason      string          `json:"reason,omitempty"`
}

// ClassifyReport is the offline verdict on a saved page.
type ClassifyReport struct {
	Complete TargetReport `json:"complete"`
	Next     TargetReport `json:"next"`
	// Target is the label a scan would activate, empty when none.
	Target string `json:"target"`
}

// ClassifyHTML runs both classifiers and the gate over a saved HTML page
// without a browser. Rendering is taken from inline styles and attributes.
// markAsComplete mirrors the page setting of the same name.
func ClassifyHTML(ctx context.Context, r io.Reader, cfg *Config, markAsComplete bool, logger *slog.Logger) (ClassifyReport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := dom.ParseStatic(r)
	if err != nil {
		return ClassifyReport{}, err
	}
	g := gate.New(cfg.Gate.Heuristics(), logger)

	var rep ClassifyReport
	rep.Complete = inspectTarget(ctx, doc, classify.New(cfg.Profiles.CompleteProfile(), logger), g)
	rep.Next = inspectTarget(ctx, doc, classify.New(cfg.Profiles.NextProfile(), logger), g)

	// A rejected element is forced, so any found target is clickable.
	switch {
	case markAsComplete && rep.Complete.Found:
		rep.Target = rep.Complete.Label
	case rep.Next.Found:
		rep.Target = rep.Next.Label
	}
	return rep, nil
}

func inspectTarget(ctx context.Context, doc dom.Document, c *classify.Classifier, g *gate.Gate) TargetReport {
	p := c.Profile()
	tr := TargetReport{Kind: string(p.Kind), Label: p.Label}
	m, ok := c.Find(ctx, doc)
	if !ok {
		return tr
	}
	tr.Found = true
	tr.Tier = m.Tier.String()
	tr.Selector = m.Selector
	tr.Element = m.Element.Describe()
	var reason gate.Reason
	tr.Activatable, reason = g.IsActivatable(ctx, m.Element)
	tr.Reason = string(reason)
	return tr
}
