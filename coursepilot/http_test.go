package coursepilot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/coursepilot/connectivity"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

func testServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	cfg := testConfig()
	cfg.Pages = []PageConfig{{ID: "p1", URL: "https://lms.test/c/1", StartEnabled: ptr(true)}}
	f := newFixture(t, cfg, memDB(t))
	f.page(t, "p1", nextPage)
	f.page(t, "p2", nextPage)
	f.start(t)
	srv := httptest.NewServer(f.pilot.Handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestHTTP_Health(t *testing.T) {
	_, srv := testServer(t)
	code, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if code != http.StatusOK {
		t.Fatalf("code %d", code)
	}
	var got map[string]any
	json.Unmarshal(body, &got)
	if got["status"] != "ok" || got["pages"] != float64(1) {
		t.Fatalf("health: %s", body)
	}
}

func TestHTTP_StatusAndScan(t *testing.T) {
	_, srv := testServer(t)

	code, body := do(t, http.MethodPost, srv.URL+"/api/pages/p1/scan", "")
	if code != http.StatusOK || !strings.Contains(string(body), `"activated"`) {
		t.Fatalf("scan: %d %s", code, body)
	}

	code, body = do(t, http.MethodGet, srv.URL+"/api/pages/p1/status", "")
	if code != http.StatusOK {
		t.Fatalf("status: %d %s", code, body)
	}
	var rep state.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatal(err)
	}
	if !rep.Enabled || rep.Stats.ClicksToday != 1 || rep.SecondsUntilNext != 10 {
		t.Fatalf("report: %+v", rep)
	}
	if rep.Stats.LastAction != "Next button clicked" {
		t.Fatalf("last action: %q", rep.Stats.LastAction)
	}
}

func TestHTTP_Monitoring(t *testing.T) {
	_, srv := testServer(t)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/pages/p1/monitoring", `{"enabled": false}`)
	if code != http.StatusOK {
		t.Fatalf("disable: %d", code)
	}
	_, body := do(t, http.MethodGet, srv.URL+"/api/pages/p1/status", "")
	if !strings.Contains(string(body), `"state":"idle"`) {
		t.Fatalf("status: %s", body)
	}

	code, _ = do(t, http.MethodPost, srv.URL+"/api/pages/p1/monitoring", `{}`)
	if code != http.StatusBadRequest {
		t.Fatalf("missing flag: %d", code)
	}
}

func TestHTTP_Settings(t *testing.T) {
	_, srv := testServer(t)

	code, body := do(t, http.MethodPut, srv.URL+"/api/pages/p1/settings", `{"delaySeconds": 5, "markAsComplete": false}`)
	if code != http.StatusOK {
		t.Fatalf("update: %d %s", code, body)
	}
	if !strings.Contains(string(body), `"clickDelay":5000`) || !strings.Contains(string(body), `"markAsComplete":false`) {
		t.Fatalf("update: %s", body)
	}

	code, body = do(t, http.MethodPut, srv.URL+"/api/pages/p1/settings", `{"delaySeconds": -3}`)
	if code != http.StatusBadRequest {
		t.Fatalf("negative: %d %s", code, body)
	}
	_, body = do(t, http.MethodGet, srv.URL+"/api/pages/p1/status", "")
	if !strings.Contains(string(body), `"clickDelay":5000`) {
		t.Fatalf("settings changed by rejected update: %s", body)
	}
}

func TestHTTP_UnknownPage(t *testing.T) {
	_, srv := testServer(t)
	for _, c := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/pages/nope/status", ""},
		{http.MethodPost, "/api/pages/nope/scan", ""},
		{http.MethodPost, "/api/pages/nope/monitoring", `{"enabled": true}`},
		{http.MethodPut, "/api/pages/nope/settings", `{"delaySeconds": 1}`},
		{http.MethodDelete, "/api/pages/nope", ""},
	} {
		if code, _ := do(t, c.method, srv.URL+c.path, c.body); code != http.StatusNotFound {
			t.Errorf("%s %s: %d", c.method, c.path, code)
		}
	}
}

func TestHTTP_PageLifecycle(t *testing.T) {
	_, srv := testServer(t)

	code, body := do(t, http.MethodPost, srv.URL+"/api/pages", `{"id": "p2", "url": "https://lms.test/c/2"}`)
	if code != http.StatusCreated {
		t.Fatalf("open: %d %s", code, body)
	}
	code, _ = do(t, http.MethodPost, srv.URL+"/api/pages", `{"id": "p2", "url": "https://lms.test/c/2"}`)
	if code != http.StatusConflict {
		t.Fatalf("duplicate: %d", code)
	}
	code, _ = do(t, http.MethodPost, srv.URL+"/api/pages", `{"id": "p3"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("missing url: %d", code)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/pages", "")
	var pages []PageInfo
	json.Unmarshal(body, &pages)
	if len(pages) != 2 || pages[1].ID != "p2" || pages[1].State != state.Idle {
		t.Fatalf("pages: %s", body)
	}

	code, _ = do(t, http.MethodDelete, srv.URL+"/api/pages/p2", "")
	if code != http.StatusOK {
		t.Fatalf("close: %d", code)
	}
	_, body = do(t, http.MethodGet, srv.URL+"/api/pages", "")
	json.Unmarshal(body, &pages)
	if len(pages) != 1 {
		t.Fatalf("pages after close: %s", body)
	}
}

func TestHTTP_SecurityHeaders(t *testing.T) {
	_, srv := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff")
	}
	if !strings.HasPrefix(resp.Header.Get("X-Request-ID"), "req_") {
		t.Fatalf("request id: %q", resp.Header.Get("X-Request-ID"))
	}
}

func TestHTTP_RPCBridge(t *testing.T) {
	f, srv := testServer(t)

	call := connectivity.HTTPClient(srv.URL+"/rpc", ServiceStatus, time.Second)
	out, err := call(context.Background(), []byte(`{"page_id":"p1"}`))
	if err != nil {
		t.Fatal(err)
	}
	var rep state.Report
	if err := json.Unmarshal(out, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.PageID != "p1" || !rep.Enabled {
		t.Fatalf("report: %+v", rep)
	}

	resp, err := http.Post(srv.URL+"/rpc/nope", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown service: %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/rpc/"+ServiceToggle, "text/plain", strings.NewReader(`{"page_id":"p1","enabled":false}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain toggle: %d", resp.StatusCode)
	}
	if rep, _ := f.pilot.Status(context.Background(), "p1"); !rep.Enabled {
		t.Fatal("text/plain request toggled the page")
	}

	code, body := do(t, http.MethodGet, srv.URL+"/rpc/", "")
	var services []string
	json.Unmarshal(body, &services)
	if code != http.StatusOK || len(services) != 5 {
		t.Fatalf("services: %d %s", code, body)
	}
}

func TestHTTP_EventsWebsocket(t *testing.T) {
	f, srv := testServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?page=p1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.pilot.Observers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("observer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := f.pilot.ForceScan(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev state.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.PageID != "p1" {
			t.Fatalf("event for other page: %+v", ev)
		}
		if ev.Type == state.EventStatus && ev.Status == "Clicked Next" {
			return
		}
	}
}
