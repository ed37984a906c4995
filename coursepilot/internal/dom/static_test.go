package dom

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const page = `<!doctype html><html><body>
<div class="lesson">
  <p>Intro</p>
  <a href="#" title="Go back">Back</a>
  <button id="done" class="btn disabled" disabled style="opacity: 0.5; top: -4px">  Mark as Complete </button>
  <input type="submit" value="Submit answer">
  <input type="button" placeholder="Proceed">
  <input type="text" value="not a candidate">
  <div role="button" aria-label="Next lesson">→</div>
  <span role="button" title="Continue"></span>
  <button hidden>Ghost</button>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *StaticDocument {
	t.Helper()
	doc, err := ParseStaticString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestCandidates_DocumentOrderAndText(t *testing.T) {
	doc := mustParse(t, page)
	els, err := doc.Candidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"Back", "  Mark as Complete ", "Submit answer", "Proceed", "→", "Continue", "Ghost"}
	if len(els) != len(want) {
		t.Fatalf("candidates: got %d, want %d", len(els), len(want))
	}
	for i, el := range els {
		if got := el.Describe().Text; got != want[i] {
			t.Errorf("candidate %d text: got %q, want %q", i, got, want[i])
		}
	}
	if got := els[4].Describe().AriaLabel; got != "Next lesson" {
		t.Errorf("aria-label: got %q", got)
	}
}

func TestDescription_Normalized(t *testing.T) {
	d := Description{Tag: "BUTTON", Text: "  Mark As Complete\n", AriaLabel: "Finish", Title: "NEXT"}.Normalized()
	if d.Tag != "button" || d.Text != "mark as complete" || d.AriaLabel != "finish" || d.Title != "next" {
		t.Fatalf("normalized: %+v", d)
	}
}

func TestFirst(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	el, err := doc.First(ctx, `[id*="done"]`)
	if err != nil || el == nil {
		t.Fatalf("first: el=%v err=%v", el, err)
	}
	el, err = doc.First(ctx, ".nothing-here")
	if err != nil || el != nil {
		t.Fatalf("no match: el=%v err=%v", el, err)
	}
	_, err = doc.First(ctx, "button[")
	if !errors.Is(err, ErrInvalidSelector) {
		t.Fatalf("invalid selector: got %v", err)
	}
}

func TestInspect(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()

	el, _ := doc.First(ctx, "#done")
	r, err := el.Inspect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Disabled || !r.HasClass("disabled") || r.Opacity != "0.5" || r.Box.Y != -4 {
		t.Fatalf("rendering: %+v", r)
	}
	if r.Box.Width == 0 || r.Box.Height == 0 {
		t.Fatalf("default box should be non-zero: %+v", r.Box)
	}

	ghost, _ := doc.First(ctx, "button[hidden]")
	r, _ = ghost.Inspect(ctx)
	if r.Display != "none" || r.Box.Width != 0 {
		t.Fatalf("hidden rendering: %+v", r)
	}
}

func TestApply(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()
	el, _ := doc.First(ctx, "#done")

	err := el.Apply(ctx, Patch{
		ClearDisabled:    true,
		RemoveAttributes: []string{"aria-disabled"},
		RemoveClasses:    []string{"disabled"},
		Style:            map[string]string{"opacity": "1", "cursor": "pointer"},
	})
	if err != nil {
		t.Fatal(err)
	}

	se := el.(*StaticElement)
	if _, ok := se.Attr("disabled"); ok {
		t.Error("disabled attribute still present")
	}
	if class, _ := se.Attr("class"); class != "btn" {
		t.Errorf("class: got %q", class)
	}
	if style, _ := se.Attr("style"); style != "opacity: 1; top: -4px; cursor: pointer" {
		t.Errorf("style: got %q", style)
	}
	if !strings.Contains(doc.HTML(), `class="btn"`) {
		t.Error("rendered HTML does not reflect the patch")
	}
}

func TestClickFocusHighlight(t *testing.T) {
	doc := mustParse(t, page)
	ctx := context.Background()
	el, _ := doc.First(ctx, "#done")

	if err := el.Focus(ctx); err != nil {
		t.Fatal(err)
	}
	if !el.(*StaticElement).Focused() {
		t.Error("element not focused")
	}
	if err := el.Click(ctx); err != nil {
		t.Fatal(err)
	}
	if got := doc.Clicked(); len(got) != 1 || got[0].Tag != "button" {
		t.Fatalf("clicked: %+v", got)
	}

	boom := errors.New("detached")
	doc.FailClicks(boom)
	if err := el.Click(ctx); !errors.Is(err, boom) {
		t.Fatalf("click error: got %v", err)
	}

	el.Highlight(ctx, "Next")
	if v, _ := el.(*StaticElement).Attr("data-coursepilot-highlight"); v != "Next" {
		t.Errorf("highlight: got %q", v)
	}
	el.Unhighlight(ctx)
	if _, ok := el.(*StaticElement).Attr("data-coursepilot-highlight"); ok {
		t.Error("highlight not removed")
	}
}
