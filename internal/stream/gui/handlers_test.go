package gui

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pgresults/internal/config"
	"pgresults/pkg/export"
	"pgresults/pkg/results"
)

// fakeProvider keeps one result per id and answers restores from it.
type fakeProvider struct {
	mu       sync.Mutex
	results  map[string]results.FullResults
	sinks    map[string]results.DisplaySink
	active   string
	executed []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: make(map[string]results.FullResults),
		sinks:   make(map[string]results.DisplaySink),
	}
}

func sampleResults() results.FullResults {
	var r results.FullResults
	_, _ = r.Merge(results.Batch{
		Command:  results.CommandSelect,
		RowCount: 2,
		Fields: []results.Field{
			{Name: "id", Format: "int4", DisplayType: "integer", Key: "0"},
			{Name: "name", Format: "text", DisplayType: "text", Key: "1"},
		},
		Rows: []results.Row{
			results.NewRow([]any{1, "a<b"}),
			results.NewRow([]any{2, nil}),
		},
	})
	return r
}

func (p *fakeProvider) GetSessions() []SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	var list []SessionInfo
	for id, r := range p.results {
		list = append(list, SessionInfo{ID: id, State: "completed", Rows: len(r.Rows), Active: id == p.active})
	}
	return list
}

func (p *fakeProvider) Execute(ctx context.Context, sql, title string, sink results.DisplaySink) (string, error) {
	if strings.Contains(sql, "fail") {
		return "", errors.New("connection error: refused")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "q1"
	r := sampleResults()
	p.results[id] = r
	p.sinks[id] = sink
	p.executed = append(p.executed, sql)
	_ = sink.Post(results.DataMessage{
		Command: results.CommandPtr(r.Command),
		Summary: "Rows returned: 2",
		Results: results.NewPage(r.Fields, r.Rows),
	})
	return id, nil
}

func (p *fakeProvider) Restore(id string, sink results.DisplaySink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.results[id]
	if !ok {
		return ErrSessionNotFound
	}
	p.sinks[id] = sink
	return sink.Post(results.DataMessage{Summary: "restored", Results: results.NewPage(r.Fields, r.Rows)})
}

func (p *fakeProvider) DestroySession(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.results[id]; !ok {
		return ErrSessionNotFound
	}
	delete(p.results, id)
	return nil
}

func (p *fakeProvider) SetActive(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.results[id]; !ok {
		return ErrSessionNotFound
	}
	p.active = id
	return nil
}

func (p *fakeProvider) Snapshot(id string) (results.FullResults, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.results[id]
	if !ok {
		return results.FullResults{}, ErrSessionNotFound
	}
	return r.Clone(), nil
}

func (p *fakeProvider) Export(id, format string, w io.Writer) error {
	r, err := p.Snapshot(id)
	if err != nil {
		return err
	}
	if format == "json" {
		return export.WriteJSON(w, &r)
	}
	return export.WriteCSV(w, &r)
}

func runQuery(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{"sql":"select 1","title":"one"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/query status = %d", resp.StatusCode)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.ID
}

// readEvent reads one server-sent event.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func openEvents(t *testing.T, ctx context.Context, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp, bufio.NewReader(resp.Body)
}

func TestQueryThenEvents(t *testing.T) {
	provider := newFakeProvider()
	srv := httptest.NewServer(NewMux(provider))
	defer srv.Close()

	id := runQuery(t, srv)
	if id != "q1" {
		t.Fatalf("id = %q", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, r := openEvents(t, ctx, srv.URL+"/api/sessions/events?id="+id)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	event, data := readEvent(t, r)
	if event != "data" {
		t.Fatalf("event = %q", event)
	}
	var msg struct {
		Command *string `json:"command"`
		Summary string  `json:"summary"`
		Offset  int     `json:"offset"`
		Results struct {
			Rows []map[string]any `json:"rows"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		t.Fatalf("bad event data %q: %v", data, err)
	}
	if msg.Command == nil || *msg.Command != "SELECT" || msg.Summary != "Rows returned: 2" || len(msg.Results.Rows) != 2 {
		t.Errorf("message = %+v", msg)
	}
}

func TestEventsRestore(t *testing.T) {
	provider := newFakeProvider()
	srv := httptest.NewServer(NewMux(provider))
	defer srv.Close()
	id := runQuery(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, r := openEvents(t, ctx, srv.URL+"/api/sessions/events?restore=1&id="+id)
	defer resp.Body.Close()

	_, data := readEvent(t, r)
	if !strings.Contains(data, `"summary":"restored"`) || !strings.Contains(data, `"offset":0`) {
		t.Errorf("restore event = %s", data)
	}
}

func TestEventsUnknownSessionGetsNotice(t *testing.T) {
	srv := httptest.NewServer(NewMux(newFakeProvider()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, r := openEvents(t, ctx, srv.URL+"/api/sessions/events?id=gone")
	defer resp.Body.Close()

	event, data := readEvent(t, r)
	if event != "notice" || !strings.Contains(data, NoticeRerun) {
		t.Errorf("event %q data %q", event, data)
	}
}

func TestRestoreEndpoint(t *testing.T) {
	provider := newFakeProvider()
	srv := httptest.NewServer(NewMux(provider))
	defer srv.Close()
	id := runQuery(t, srv)

	resp, err := http.Post(srv.URL+"/api/sessions/restore?id="+id, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("restore status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/sessions/restore", "application/json", strings.NewReader(`{"id":"gone"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("restore of unknown id status = %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["notice"] != NoticeRerun {
		t.Errorf("notice = %q", body["notice"])
	}
}

func TestQueryValidationAndFailure(t *testing.T) {
	srv := httptest.NewServer(NewMux(newFakeProvider()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{"sql":"  "}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty sql status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{"sql":"select fail"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("failed query status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/query")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/query status = %d", resp.StatusCode)
	}
}

func TestSessionsActivateClose(t *testing.T) {
	provider := newFakeProvider()
	srv := httptest.NewServer(NewMux(provider))
	defer srv.Close()
	id := runQuery(t, srv)

	resp, err := http.Post(srv.URL+"/api/sessions/activate?id="+id, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("activate status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var list []SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(list) != 1 || !list[0].Active || list[0].Rows != 2 {
		t.Errorf("sessions = %+v", list)
	}

	resp, err = http.Post(srv.URL+"/api/sessions/close?id="+id, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("close status = %d", resp.StatusCode)
	}
	resp, err = http.Post(srv.URL+"/api/sessions/close?id="+id, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second close status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/sessions/close", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("close without id status = %d", resp.StatusCode)
	}
}

func TestExportAndPreview(t *testing.T) {
	provider := newFakeProvider()
	srv := httptest.NewServer(NewMux(provider))
	defer srv.Close()
	id := runQuery(t, srv)

	resp, err := http.Get(srv.URL + "/api/sessions/export?format=csv&id=" + id)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d: %s", resp.StatusCode, body)
	}
	if string(body) != "id,name\n1,a<b\n2,\n" {
		t.Errorf("csv = %q", body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "results.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/export?format=xml&id=" + id)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("xml export status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/preview?id=" + id)
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	html := string(body)
	for _, want := range []string{"Rows returned: 2", "a&#60;b", "<i>null</i>", "<th>1</th>", "integer"} {
		if !strings.Contains(html, want) {
			t.Errorf("preview missing %q: %s", want, html)
		}
	}

	resp, err = http.Get(srv.URL + "/api/sessions/preview?id=gone")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("preview of unknown id status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewMux(newFakeProvider()))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}

func TestPanelMarksStaleWhenFull(t *testing.T) {
	p := NewPanel(1)
	if err := p.Post(results.DataMessage{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Post(results.DataMessage{}); !errors.Is(err, ErrPanelFull) {
		t.Errorf("Post() on full panel = %v", err)
	}
	if !p.takeStale() {
		t.Error("takeStale() = false after an overflow")
	}
	if len(p.Messages()) != 0 {
		t.Error("takeStale() left queued messages")
	}
	if p.takeStale() {
		t.Error("takeStale() did not clear the flag")
	}
	if !p.claim() || p.claim() {
		t.Error("claim() should succeed exactly once")
	}
	p.Close()
	if err := p.Post(results.DataMessage{}); !errors.Is(err, ErrPanelClosed) {
		t.Errorf("Post() on closed panel = %v", err)
	}
}

func TestConfigEndpointMasksPassword(t *testing.T) {
	srv := httptest.NewServer(NewMux(newFakeProvider()))
	defer srv.Close()

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Postgres.Password = "secret"
	config.SetOnce(cfg, "/etc/pgresults.yaml")

	resp, err := http.Get(srv.URL + "/api/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body ConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ConfigPath != "/etc/pgresults.yaml" || body.Config.Postgres.Password != "********" {
		t.Errorf("config response = %+v", body)
	}
}
