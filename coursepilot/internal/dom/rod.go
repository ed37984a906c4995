package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
)

const describeJS = `function() {
	const tag = this.tagName.toLowerCase();
	let text;
	if (tag === 'input') {
		text = this.value || this.placeholder || this.title || '';
	} else if (tag === 'button' || tag === 'a' || tag === 'span') {
		text = this.textContent || this.innerText || this.title || this.getAttribute('aria-label') || '';
	} else {
		text = this.textContent || this.innerText || '';
	}
	return JSON.stringify({
		tag: tag,
		text: text,
		ariaLabel: this.getAttribute('aria-label') || '',
		title: this.getAttribute('title') || ''
	});
}`

const inspectJS = `function() {
	const s = getComputedStyle(this);
	const r = this.getBoundingClientRect();
	return JSON.stringify({
		disabled: !!this.disabled || this.hasAttribute('disabled'),
		ariaDisabled: this.getAttribute('aria-disabled') || '',
		classes: Array.from(this.classList),
		pointerEvents: s.pointerEvents,
		opacity: s.opacity,
		cursor: s.cursor,
		display: s.display,
		visibility: s.visibility,
		box: {x: r.left, y: r.top, width: r.width, height: r.height}
	});
}`

const applyJS = `function(p) {
	if (p.clearDisabled) { this.disabled = false; }
	(p.removeAttributes || []).forEach(a => this.removeAttribute(a));
	(p.removeClasses || []).forEach(c => this.classList.remove(c));
	Object.entries(p.style || {}).forEach(([k, v]) => this.style.setProperty(k, v));
}`

const clickJS = `function() { this.click(); }`

// focusJS avoids rod's Focus, which scrolls first and fails on nodes
// without a layout box.
const focusJS = `function() { if (typeof this.focus === 'function') this.focus(); }`

const highlightJS = `function(label) {
	this.dataset.coursepilotOutline = this.style.outline || '';
	this.style.outline = '3px solid #4CAF50';
	const r = this.getBoundingClientRect();
	const b = document.createElement('div');
	b.setAttribute('data-coursepilot-badge', '');
	b.textContent = label;
	b.style.cssText = 'position:fixed;z-index:2147483647;background:#4CAF50;color:#fff;' +
		'padding:2px 6px;font:12px sans-serif;border-radius:3px;pointer-events:none;' +
		'top:' + Math.max(0, r.top - 22) + 'px;left:' + Math.max(0, r.left) + 'px';
	document.body.appendChild(b);
}`

const unhighlightJS = `function() {
	this.style.outline = this.dataset.coursepilotOutline || '';
	delete this.dataset.coursepilotOutline;
	document.querySelectorAll('[data-coursepilot-badge]').forEach(n => n.remove());
}`

// RodDocument is a Document backed by a live CDP page.
type RodDocument struct {
	page *rod.Page
}

// NewRodDocument wraps page.
func NewRodDocument(page *rod.Page) *RodDocument {
	return &RodDocument{page: page}
}

// Candidates implements Document. Elements that vanish while being described
// are skipped.
func (d *RodDocument) Candidates(ctx context.Context) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(CandidateSelector)
	if err != nil {
		return nil, fmt.Errorf("dom: candidates: %w", err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		re, err := describeRod(ctx, el)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out, nil
}

// First implements Document.
func (d *RodDocument) First(ctx context.Context, selector string) (Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		if strings.Contains(err.Error(), "not a valid selector") {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
		}
		return nil, fmt.Errorf("dom: query %q: %w", selector, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return describeRod(ctx, els[0])
}

type rodElement struct {
	el   *rod.Element
	desc Description
}

func describeRod(ctx context.Context, el *rod.Element) (*rodElement, error) {
	res, err := el.Context(ctx).Eval(describeJS)
	if err != nil {
		return nil, fmt.Errorf("dom: describe: %w", err)
	}
	var desc Description
	if err := json.Unmarshal([]byte(res.Value.Str()), &desc); err != nil {
		return nil, fmt.Errorf("dom: describe: decode: %w", err)
	}
	return &rodElement{el: el, desc: desc}, nil
}

func (e *rodElement) Describe() Description { return e.desc }

func (e *rodElement) Inspect(ctx context.Context) (Rendering, error) {
	res, err := e.el.Context(ctx).Eval(inspectJS)
	if err != nil {
		return Rendering{}, fmt.Errorf("dom: inspect: %w", err)
	}
	var r Rendering
	if err := json.Unmarshal([]byte(res.Value.Str()), &r); err != nil {
		return Rendering{}, fmt.Errorf("dom: inspect: decode: %w", err)
	}
	return r, nil
}

func (e *rodElement) Apply(ctx context.Context, p Patch) error {
	if _, err := e.el.Context(ctx).Eval(applyJS, p); err != nil {
		return fmt.Errorf("dom: apply: %w", err)
	}
	return nil
}

func (e *rodElement) Focus(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(focusJS); err != nil {
		return fmt.Errorf("dom: focus: %w", err)
	}
	return nil
}

func (e *rodElement) Click(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(clickJS); err != nil {
		return fmt.Errorf("dom: click: %w", err)
	}
	return nil
}

func (e *rodElement) Highlight(ctx context.Context, label string) error {
	_, err := e.el.Context(ctx).Eval(highlightJS, label)
	return err
}

func (e *rodElement) Unhighlight(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(unhighlightJS)
	return err
}
