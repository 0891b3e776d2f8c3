package gui

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"pgresults/internal/config"
	"pgresults/pkg/export"
	"pgresults/pkg/format"
	"pgresults/pkg/logger"
	"pgresults/pkg/results"
)

type handlers struct {
	provider SessionProvider
	panels   *panels
}

// sessionID reads "id" from a JSON body, the query string or the form.
func sessionID(r *http.Request) (string, error) {
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "application/json") {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", errors.New("invalid JSON")
		}
		return body.ID, nil
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		id = r.FormValue("id")
	}
	return id, nil
}

func requireSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := sessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProviderError maps provider errors to a status. Unknown sessions get
// the re-run notice.
func writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"notice": NoticeRerun})
	case errors.Is(err, export.ErrNoData):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handlers) handleAPIQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		SQL   string `json:"sql"`
		Title string `json:"title"`
	}
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	} else {
		body.SQL = r.FormValue("sql")
		body.Title = r.FormValue("title")
	}
	if strings.TrimSpace(body.SQL) == "" {
		http.Error(w, "sql required", http.StatusBadRequest)
		return
	}

	panel := NewPanel(0)
	id, err := h.provider.Execute(r.Context(), body.SQL, body.Title, panel)
	if err != nil {
		logger.Error("[GUI] query failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.panels.replace(id, panel)
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *handlers) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.provider.GetSessions())
}

// restorePanel gives id a fresh panel holding the whole accumulated result.
func (h *handlers) restorePanel(id string) (*Panel, error) {
	panel := NewPanel(0)
	h.panels.replace(id, panel)
	if err := h.provider.Restore(id, panel); err != nil {
		h.panels.remove(id)
		return nil, err
	}
	return panel, nil
}

func (h *handlers) handleAPISessionsRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := requireSessionID(w, r)
	if !ok {
		return
	}
	if _, err := h.restorePanel(id); err != nil {
		writeProviderError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleAPISessionsEvents streams the push messages of one session as
// server-sent events. With restore=1, or when the session's panel already
// has a reader, the stream starts with the whole accumulated result.
func (h *handlers) handleAPISessionsEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	panel, found := h.panels.get(id)
	if !found || r.URL.Query().Get("restore") == "1" || !panel.claim() {
		var err error
		panel, err = h.restorePanel(id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				_ = writeEvent(w, "notice", map[string]string{"notice": NoticeRerun})
				flusher.Flush()
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		panel.claim()
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-panel.Messages():
			if !ok {
				return
			}
			if err := writeEvent(w, msg.MessageKind(), msg); err != nil {
				logger.Debug("[GUI] event stream for %s ended: %v", id, err)
				return
			}
			flusher.Flush()
			if panel.takeStale() {
				logger.Warn("[GUI] display of %s fell behind, restoring", id)
				if err := h.provider.Restore(id, panel); err != nil {
					_ = writeEvent(w, "notice", map[string]string{"notice": NoticeRerun})
					flusher.Flush()
					return
				}
			}
		}
	}
}

func (h *handlers) handleAPISessionsClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := requireSessionID(w, r)
	if !ok {
		return
	}
	h.panels.remove(id)
	if err := h.provider.DestroySession(id); err != nil {
		writeProviderError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handlers) handleAPISessionsActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := requireSessionID(w, r)
	if !ok {
		return
	}
	if err := h.provider.SetActive(id); err != nil {
		writeProviderError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handlers) handleAPISessionsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	exportFormat := r.URL.Query().Get("format")
	if exportFormat == "" {
		exportFormat = "csv"
	}
	var contentType string
	switch exportFormat {
	case "csv":
		contentType = "text/csv; charset=utf-8"
	case "json":
		contentType = "application/json"
	default:
		http.Error(w, "format must be csv or json", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := h.provider.Export(id, exportFormat, &buf); err != nil {
		writeProviderError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="results.%s"`, exportFormat))
	_, _ = w.Write(buf.Bytes())
}

// handleAPISessionsPreview renders the accumulated result as an HTML table.
func (h *handlers) handleAPISessionsPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	snapshot, err := h.provider.Snapshot(id)
	if err != nil {
		writeProviderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, "<p>%s</p><table><thead>%s</thead><tbody>%s</tbody></table>",
		format.Escape(format.Summary(&snapshot)),
		format.Header(snapshot.Fields),
		format.RowsHTML(snapshot.Fields, snapshot.Rows, 0))
}

// ConfigResponse is the config returned by GET /api/config (masked password).
type ConfigResponse struct {
	ConfigPath string         `json:"config_path"`
	Config     *config.Config `json:"config"`
}

func handleAPIConfigGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg, ok := config.GetCfgIfSet()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{
		ConfigPath: config.GetConfigPath(),
		Config:     config.ConfigForAPI(cfg),
	})
}

var _ results.DisplaySink = (*Panel)(nil)
