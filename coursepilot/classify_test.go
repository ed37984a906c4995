package coursepilot

import (
	"context"
	"strings"
	"testing"
)

func TestClassifyHTML(t *testing.T) {
	html := `<html><body>
		<button class="btn disabled" disabled>Mark as Complete</button>
		<a href="#" class="pagination-next" style="opacity: 0.5">›</a>
	</body></html>`

	rep, err := ClassifyHTML(context.Background(), strings.NewReader(html), nil, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Complete.Found || rep.Complete.Tier != "content" || rep.Complete.Activatable || rep.Complete.Reason != "disabled" {
		t.Fatalf("complete: %+v", rep.Complete)
	}
	if !rep.Next.Found || rep.Next.Tier != "selector" || rep.Next.Selector != `[class*="next"]` {
		t.Fatalf("next: %+v", rep.Next)
	}
	if rep.Next.Activatable || rep.Next.Reason != "opacity" {
		t.Fatalf("next gate: %+v", rep.Next)
	}
	if rep.Target != "Mark as Complete" {
		t.Fatalf("target: %q", rep.Target)
	}

	rep, _ = ClassifyHTML(context.Background(), strings.NewReader(html), nil, false, nil)
	if rep.Target != "Next" {
		t.Fatalf("target without completion: %q", rep.Target)
	}
}

func TestClassifyHTML_NothingFound(t *testing.T) {
	rep, err := ClassifyHTML(context.Background(), strings.NewReader(`<p>Reading only</p>`), nil, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Complete.Found || rep.Next.Found || rep.Target != "" {
		t.Fatalf("report: %+v", rep)
	}
}
