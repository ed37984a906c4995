package coursepilot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hazyhaar/coursepilot/connectivity"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

func TestConnectivity_Services(t *testing.T) {
	cfg := testConfig()
	cfg.Pages = []PageConfig{{ID: "p1", URL: "https://lms.test/c/1"}}
	f := newFixture(t, cfg, memDB(t))
	f.page(t, "p1", nextPage)
	f.start(t)

	router := connectivity.New()
	f.pilot.RegisterConnectivity(router)
	ctx := context.Background()

	want := []string{ServicePages, ServiceScan, ServiceStatus, ServiceToggle, ServiceSettings}
	if got := router.Services(); len(got) != len(want) {
		t.Fatalf("services: %v", got)
	}

	if out, err := router.Call(ctx, ServiceScan, []byte(`{"page_id":"p1"}`)); err != nil || string(out) != `{"result":"idle","success":true}` {
		t.Fatalf("scan while idle: %s %v", out, err)
	}

	if _, err := router.Call(ctx, ServiceToggle, []byte(`{"page_id":"p1","enabled":true}`)); err != nil {
		t.Fatal(err)
	}
	out, err := router.Call(ctx, ServiceSettings, []byte(`{"page_id":"p1","mark_as_complete":false}`))
	if err != nil {
		t.Fatal(err)
	}
	var s state.Settings
	json.Unmarshal(out, &s)
	if s.MarkAsComplete || s.ClickDelay != 10000 {
		t.Fatalf("settings: %s", out)
	}

	out, err = router.Call(ctx, ServiceStatus, []byte(`{"page_id":"p1"}`))
	if err != nil {
		t.Fatal(err)
	}
	var rep state.Report
	json.Unmarshal(out, &rep)
	if !rep.Enabled || rep.LastClick != "Never" {
		t.Fatalf("report: %s", out)
	}

	if _, err := router.Call(ctx, ServiceStatus, []byte(`{"page_id":"x"}`)); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("unknown page: %v", err)
	}
	if _, err := router.Call(ctx, ServiceStatus, []byte(`not json`)); err == nil {
		t.Fatal("bad payload accepted")
	}
}
