package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Default box of a static element without explicit width/height.
const (
	staticWidth  = 120
	staticHeight = 32
)

var candidateMatcher = cascadia.MustCompile(CandidateSelector)

// StaticDocument is a Document over a parsed HTML tree. It renders from
// inline styles and attributes only, which is enough for offline
// classification and for driving the loop without a browser.
type StaticDocument struct {
	mu       sync.Mutex
	root     *html.Node
	clicked  []Description
	focused  *html.Node
	clickErr error
}

// ParseStatic parses an HTML document.
func ParseStatic(r io.Reader) (*StaticDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &StaticDocument{root: root}, nil
}

// ParseStaticString parses an HTML string.
func ParseStaticString(s string) (*StaticDocument, error) {
	return ParseStatic(strings.NewReader(s))
}

// Candidates implements Document.
func (d *StaticDocument) Candidates(_ context.Context) ([]Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := candidateMatcher.MatchAll(d.root)
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &StaticElement{doc: d, node: n})
	}
	return out, nil
}

// First implements Document.
func (d *StaticDocument) First(_ context.Context, selector string) (Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := sel.MatchFirst(d.root)
	if n == nil {
		return nil, nil
	}
	return &StaticElement{doc: d, node: n}, nil
}

// FailClicks makes every following Click return err. Nil restores clicks.
func (d *StaticDocument) FailClicks(err error) {
	d.mu.Lock()
	d.clickErr = err
	d.mu.Unlock()
}

// Clicked lists the elements clicked so far, oldest first.
func (d *StaticDocument) Clicked() []Description {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Description(nil), d.clicked...)
}

// HTML renders the current tree.
func (d *StaticDocument) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	html.Render(&buf, d.root)
	return buf.String()
}

// StaticElement is an Element of a StaticDocument.
type StaticElement struct {
	doc  *StaticDocument
	node *html.Node
}

// Attr returns an attribute value.
func (e *StaticElement) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.node, name)
}

// Style returns one inline style property.
func (e *StaticElement) Style(prop string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return parseStyle(e.node)[prop]
}

// Focused reports whether the element holds focus.
func (e *StaticElement) Focused() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.focused == e.node
}

func (e *StaticElement) Describe() Description {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.describe()
}

func (e *StaticElement) describe() Description {
	n := e.node
	get := func(name string) string {
		v, _ := attr(n, name)
		return v
	}
	return Description{
		Tag:       n.Data,
		Text:      textFor(n.Data, get, textContent(n)),
		AriaLabel: get("aria-label"),
		Title:     get("title"),
	}
}

func (e *StaticElement) Inspect(_ context.Context) (Rendering, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	n := e.node
	style := parseStyle(n)
	_, disabled := attr(n, "disabled")
	aria, _ := attr(n, "aria-disabled")
	class, _ := attr(n, "class")

	r := Rendering{
		Disabled:      disabled,
		AriaDisabled:  aria,
		Classes:       strings.Fields(class),
		PointerEvents: orDefault(style["pointer-events"], "auto"),
		Opacity:       orDefault(style["opacity"], "1"),
		Cursor:        orDefault(style["cursor"], "auto"),
		Display:       orDefault(style["display"], "inline-block"),
		Visibility:    orDefault(style["visibility"], "visible"),
		Box: Box{
			X:      px(style["left"], 0),
			Y:      px(style["top"], 0),
			Width:  px(style["width"], staticWidth),
			Height: px(style["height"], staticHeight),
		},
	}
	if _, hidden := attr(n, "hidden"); hidden {
		r.Display = "none"
	}
	if r.Display == "none" {
		r.Box = Box{}
	}
	return r, nil
}

func (e *StaticElement) Apply(_ context.Context, p Patch) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	n := e.node
	if p.ClearDisabled {
		removeAttr(n, "disabled")
	}
	for _, a := range p.RemoveAttributes {
		removeAttr(n, a)
	}
	if len(p.RemoveClasses) > 0 {
		if class, ok := attr(n, "class"); ok {
			drop := make(map[string]bool, len(p.RemoveClasses))
			for _, c := range p.RemoveClasses {
				drop[c] = true
			}
			var kept []string
			for _, c := range strings.Fields(class) {
				if !drop[c] {
					kept = append(kept, c)
				}
			}
			setAttr(n, "class", strings.Join(kept, " "))
		}
	}
	if len(p.Style) > 0 {
		style := parseStyle(n)
		for k, v := range p.Style {
			style[k] = v
		}
		setAttr(n, "style", renderStyle(n, style))
	}
	return nil
}

func (e *StaticElement) Focus(_ context.Context) error {
	e.doc.mu.Lock()
	e.doc.focused = e.node
	e.doc.mu.Unlock()
	return nil
}

func (e *StaticElement) Click(_ context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.clickErr != nil {
		return e.doc.clickErr
	}
	e.doc.clicked = append(e.doc.clicked, e.describe())
	return nil
}

func (e *StaticElement) Highlight(_ context.Context, label string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.node, "data-coursepilot-highlight", label)
	return nil
}

func (e *StaticElement) Unhighlight(_ context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	removeAttr(e.node, "data-coursepilot-highlight")
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return sb.String()
}

// parseStyle reads the inline style attribute into lowercase properties.
func parseStyle(n *html.Node) map[string]string {
	out := make(map[string]string)
	raw, _ := attr(n, "style")
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		if k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

// renderStyle keeps the original declaration order and appends new
// properties in a stable order.
func renderStyle(n *html.Node, style map[string]string) string {
	var keys []string
	seen := make(map[string]bool)
	raw, _ := attr(n, "style")
	for _, decl := range strings.Split(raw, ";") {
		k, _, ok := strings.Cut(decl, ":")
		k = strings.ToLower(strings.TrimSpace(k))
		if ok && k != "" && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range style {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+style[k])
	}
	return strings.Join(parts, "; ")
}

func px(v string, def float64) float64 {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
