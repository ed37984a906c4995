package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func echo(_ context.Context, payload []byte) ([]byte, error) { return payload, nil }

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New()
	r.RegisterLocal("echo", echo)

	resp, err := r.Call(context.Background(), "echo", []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "hello" {
		t.Fatalf("got %q, want hello", resp)
	}
}

func TestCall_ServiceNotFound(t *testing.T) {
	r := New()
	_, err := r.Call(context.Background(), "missing", nil)

	var nf *ErrServiceNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("error: got %v, want ErrServiceNotFound", err)
	}
	if nf.Service != "missing" {
		t.Fatalf("service: got %q", nf.Service)
	}
}

func TestRemoteTakesPriority(t *testing.T) {
	r := New()
	r.RegisterLocal("svc", func(context.Context, []byte) ([]byte, error) { return []byte("local"), nil })
	r.RegisterRemote("svc", func(context.Context, []byte) ([]byte, error) { return []byte("remote"), nil })

	resp, err := r.Call(context.Background(), "svc", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "remote" {
		t.Fatalf("got %q, want remote", resp)
	}
}

func TestServices_Sorted(t *testing.T) {
	r := New()
	r.RegisterLocal("b", echo)
	r.RegisterLocal("a", echo)
	r.RegisterRemote("b", echo)

	if got := r.Services(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("services: got %v", got)
	}
}

func TestRecovery(t *testing.T) {
	r := New(WithMiddleware(Recovery(slog.Default())))
	r.RegisterLocal("boom", func(context.Context, []byte) ([]byte, error) { panic("kaboom") })

	_, err := r.Call(context.Background(), "boom", nil)
	var p *ErrPanic
	if !errors.As(err, &p) {
		t.Fatalf("error: got %v, want ErrPanic", err)
	}
}

func TestTimeout(t *testing.T) {
	h := Timeout(10 * time.Millisecond)(func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if _, err := h(context.Background(), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error: got %v, want deadline exceeded", err)
	}
}

func TestHTTPBridge_RoundTrip(t *testing.T) {
	server := New()
	server.RegisterLocal("echo", echo)
	server.RegisterLocal("fail", func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("page not found")
	})
	ts := httptest.NewServer(server)
	defer ts.Close()

	client := New()
	client.RegisterRemote("echo", HTTPClient(ts.URL, "echo", time.Second))
	client.RegisterRemote("fail", HTTPClient(ts.URL, "fail", time.Second))
	client.RegisterRemote("nope", HTTPClient(ts.URL, "nope", time.Second))

	resp, err := client.Call(context.Background(), "echo", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if string(resp) != `{"x":1}` {
		t.Fatalf("echo: got %q", resp)
	}

	_, err = client.Call(context.Background(), "fail", nil)
	var remote *ErrRemote
	if !errors.As(err, &remote) || remote.Status != 422 || remote.Message != "page not found" {
		t.Fatalf("fail: got %v", err)
	}

	_, err = client.Call(context.Background(), "nope", nil)
	if !errors.As(err, &remote) || remote.Status != 404 {
		t.Fatalf("nope: got %v", err)
	}
}

func TestHTTPBridge_RequiresJSON(t *testing.T) {
	server := New()
	called := false
	server.RegisterLocal("toggle", func(context.Context, []byte) ([]byte, error) {
		called = true
		return []byte(`{}`), nil
	})
	ts := httptest.NewServer(server)
	defer ts.Close()

	for _, ct := range []string{"text/plain", "application/x-www-form-urlencoded", ""} {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/toggle", strings.NewReader(`{"enabled":true}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnsupportedMediaType {
			t.Errorf("content type %q: status %d", ct, resp.StatusCode)
		}
	}
	if called {
		t.Fatal("handler ran for a non-JSON request")
	}

	resp, err := http.Post(ts.URL+"/toggle", "application/json; charset=utf-8", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !called {
		t.Fatalf("json request: status %d called %v", resp.StatusCode, called)
	}
}

func TestHTTPBridge_ListsServices(t *testing.T) {
	server := New()
	server.RegisterLocal("b", echo)
	server.RegisterLocal("a", echo)
	ts := httptest.NewServer(server)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("services: %v", got)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(WithMiddleware(Logging(logger)))
	r.RegisterLocal("echo", echo)
	r.RegisterLocal("fail", func(context.Context, []byte) ([]byte, error) { return nil, errors.New("nope") })

	r.Call(context.Background(), "echo", []byte("hi"))
	r.Call(context.Background(), "fail", nil)

	out := buf.String()
	if !strings.Contains(out, "connectivity: call ok") || !strings.Contains(out, "connectivity: call failed") {
		t.Fatalf("log: %s", out)
	}
}
