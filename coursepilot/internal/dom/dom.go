// CLAUDE:SUMMARY Document and Element abstractions over a live page: candidate enumeration, selector lookup, rendering inspection and mutation.
// Package dom abstracts the page a pilot works on. A Document enumerates
// actionable elements and resolves selectors; an Element exposes what the
// classifier and the gate need to read and the few mutations they perform.
//
// Element handles are only valid for the scan that produced them.
package dom

import (
	"context"
	"errors"
	"strings"
)

// CandidateSelector matches every element a scan considers.
const CandidateSelector = `button, input[type="button"], input[type="submit"], a, [role="button"]`

// ErrInvalidSelector wraps selector syntax errors reported by a Document.
var ErrInvalidSelector = errors.New("dom: invalid selector")

// Document is one page.
type Document interface {
	// Candidates returns actionable elements in document order.
	Candidates(ctx context.Context) ([]Element, error)
	// First returns the first element matching selector, or nil when none does.
	First(ctx context.Context, selector string) (Element, error)
}

// Element is a borrowed handle on one node.
type Element interface {
	Describe() Description
	Inspect(ctx context.Context) (Rendering, error)
	Apply(ctx context.Context, p Patch) error
	Focus(ctx context.Context) error
	Click(ctx context.Context) error
	Highlight(ctx context.Context, label string) error
	Unhighlight(ctx context.Context) error
}

// Description is the textual identity of an element.
type Description struct {
	Tag       string `json:"tag"`
	Text      string `json:"text"`
	AriaLabel string `json:"ariaLabel"`
	Title     string `json:"title"`
}

// Normalized lowercases and trims every field.
func (d Description) Normalized() Description {
	return Description{
		Tag:       strings.ToLower(d.Tag),
		Text:      strings.ToLower(strings.TrimSpace(d.Text)),
		AriaLabel: strings.ToLower(d.AriaLabel),
		Title:     strings.ToLower(d.Title),
	}
}

// Box is a bounding rectangle in viewport pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rendering is the computed state the gate judges.
type Rendering struct {
	Disabled      bool     `json:"disabled"`
	AriaDisabled  string   `json:"ariaDisabled"`
	Classes       []string `json:"classes"`
	PointerEvents string   `json:"pointerEvents"`
	Opacity       string   `json:"opacity"`
	Cursor        string   `json:"cursor"`
	Display       string   `json:"display"`
	Visibility    string   `json:"visibility"`
	Box           Box      `json:"box"`
}

// HasClass reports whether the element carries class c.
func (r Rendering) HasClass(c string) bool {
	for _, have := range r.Classes {
		if have == c {
			return true
		}
	}
	return false
}

// Patch is a best-effort mutation of one element.
type Patch struct {
	ClearDisabled    bool              `json:"clearDisabled"`
	RemoveAttributes []string          `json:"removeAttributes"`
	RemoveClasses    []string          `json:"removeClasses"`
	Style            map[string]string `json:"style"`
}

// textFor picks the visible text of an element the way a scan reads it.
func textFor(tag string, get func(string) string, textContent string) string {
	switch strings.ToLower(tag) {
	case "input":
		return firstNonEmpty(get("value"), get("placeholder"), get("title"))
	case "button", "a", "span":
		return firstNonEmpty(textContent, get("title"), get("aria-label"))
	default:
		return textContent
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
