package wled

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/typedvalue"
)

func TestMapIntentTable(t *testing.T) {
	payload := typedvalue.Map(typedvalue.F("on", typedvalue.Bool(true)))
	cases := []struct {
		intent commands.Intent
		method string
		path   string
		body   string
	}{
		{commands.IntentGetState, http.MethodGet, PathState, ""},
		{commands.IntentGetInfo, http.MethodGet, PathInfo, ""},
		{commands.IntentSetState, http.MethodPost, PathState, `{"on":true}`},
		{commands.IntentApplyJSON, http.MethodPost, PathState, `{"on":true}`},
		{commands.IntentRenameSegment, http.MethodPost, PathState, `{"on":true}`},
		{commands.IntentApplyToSegments, http.MethodPost, PathState, `{"on":true}`},
		{commands.IntentApplyConfig, http.MethodPost, PathConfig, `{"on":true}`},
		{commands.IntentSetConfig, http.MethodPost, PathConfig, `{"on":true}`},
		{commands.IntentConfigureSyncReceiver, http.MethodPost, PathConfig, `{"on":true}`},
		{commands.IntentConfigureSyncSender, http.MethodPost, PathConfig, `{"on":true}`},
		{commands.Intent("reboot"), http.MethodPost, PathState, `{"on":true}`},
	}
	for _, tc := range cases {
		req := MapIntent(tc.intent, payload)
		if req.Method != tc.method || req.Path != tc.path || string(req.Body) != tc.body {
			t.Fatalf("%s: expected %s %s %s, got %s %s %s", tc.intent, tc.method, tc.path, tc.body, req.Method, req.Path, req.Body)
		}
		again := MapIntent(tc.intent, payload)
		if again.Method != req.Method || again.Path != req.Path || !bytes.Equal(again.Body, req.Body) {
			t.Fatalf("%s: mapping is not deterministic", tc.intent)
		}
	}
}

func TestMapIntentMissingPayloadSendsEmptyObject(t *testing.T) {
	req := MapIntent(commands.IntentSetState, typedvalue.Null())
	if string(req.Body) != "{}" {
		t.Fatalf("expected {}, got %s", req.Body)
	}
}

func TestMapIntentSegmentList(t *testing.T) {
	payload := typedvalue.Map(typedvalue.F("seg", typedvalue.Array(
		typedvalue.Map(typedvalue.F("id", typedvalue.Int(0)), typedvalue.F("n", typedvalue.String("left"))),
		typedvalue.Map(typedvalue.F("id", typedvalue.Int(1)), typedvalue.F("n", typedvalue.String("right"))),
	)))
	req := MapIntent(commands.IntentRenameSegment, payload)
	want := `{"seg":[{"id":0,"n":"left"},{"id":1,"n":"right"}]}`
	if string(req.Body) != want {
		t.Fatalf("expected %s, got %s", want, req.Body)
	}
}

func targetOf(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func TestClientGetState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != PathState {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Accept") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"on":true,"bri":128}`))
	}))
	defer server.Close()

	client := NewClient()
	body, err := client.Do(context.Background(), targetOf(server), Request{Method: http.MethodGet, Path: PathState})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(body) != `{"on":true,"bri":128}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestClientPostsBody(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got <- r.Header.Get("Content-Type") + " " + string(data)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := NewClient()
	_, err := client.Do(context.Background(), targetOf(server), Request{Method: http.MethodPost, Path: PathConfig, Body: []byte(`{"id":{"name":"desk"}}`)})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if v := <-got; v != `application/json {"id":{"name":"desk"}}` {
		t.Fatalf("unexpected request: %s", v)
	}
}

func TestClientHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient().Do(context.Background(), targetOf(server), Request{Method: http.MethodGet, Path: PathState})
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Kind != ErrorHTTP || devErr.StatusCode != 500 || err.Error() != "HTTP 500" {
		t.Fatalf("unexpected error: kind=%s code=%d msg=%s", devErr.Kind, devErr.StatusCode, err)
	}
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(WithRequestTimeout(50 * time.Millisecond))
	_, err := client.Do(context.Background(), targetOf(server), Request{Method: http.MethodGet, Path: PathState})
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Kind != ErrorTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if err.Error() != "timeout" {
		t.Fatalf("expected normalized timeout text, got %s", err)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	_, err = NewClient().Do(context.Background(), addr, Request{Method: http.MethodGet, Path: PathState})
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Kind != ErrorRefused {
		t.Fatalf("expected connection refused, got %v", err)
	}
	if err.Error() != "connection refused" {
		t.Fatalf("unexpected text: %s", err)
	}
}

func TestClientBaseURL(t *testing.T) {
	cases := []struct {
		port   int
		target string
		want   string
	}{
		{80, "10.0.0.5", "http://10.0.0.5"},
		{80, "10.0.0.5:8080", "http://10.0.0.5:8080"},
		{8080, "10.0.0.5", "http://10.0.0.5:8080"},
		{80, "fe80::1", "http://[fe80::1]"},
		{81, "wled.local", "http://wled.local:81"},
	}
	for _, tc := range cases {
		client := NewClient(WithDefaultPort(tc.port))
		if got := client.BaseURL(tc.target); got != tc.want {
			t.Fatalf("port=%d target=%s: expected %s, got %s", tc.port, tc.target, tc.want, got)
		}
	}
}

func TestClientRateLimitRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(WithRateLimit(0.001, 1))
	req := Request{Method: http.MethodGet, Path: PathInfo}
	if _, err := client.Do(context.Background(), targetOf(server), req); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Do(ctx, targetOf(server), req); err == nil {
		t.Fatalf("expected second call to be throttled")
	}
}
