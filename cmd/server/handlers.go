package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"quoteboard/internal/board"
	"quoteboard/internal/metrics"
	"quoteboard/internal/view"
)

type quotesResponse struct {
	Rows       []view.Row `json:"rows"`
	State      view.State `json:"state"`
	Error      string     `json:"error,omitempty"`
	Loading    bool       `json:"loading"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	Generation uint64     `json:"generation"`
}

type viewBody struct {
	Search *string `json:"search"`
	Sort   *string `json:"sort"`
}

// fetchErrorLogger surfaces board failures in the server log.
type fetchErrorLogger struct {
	board.Funcs
	log *zap.Logger
}

func (l fetchErrorLogger) OnFetchError(msg string) {
	l.log.Warn("board refresh failed", zap.String("message", msg))
}

// newRouter mounts the API behind the JSON middleware chain. /metrics stays outside it
// because promhttp negotiates its own content type and compression.
//
// Refreshes started over HTTP run under base, not the request context.
func newRouter(base context.Context, b *board.Board, m *metrics.Metrics, lg *zap.Logger, timeout time.Duration) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	api.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetQuotes(w, r, b)
	})
	api.HandleFunc("/api/view", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, toResponse(b.View()))
		case http.MethodPost:
			handlePostView(w, r, b)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	api.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !b.TriggerRefresh(base) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "refresh already in flight"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
	})

	var h http.Handler = api
	if timeout > 0 {
		h = http.TimeoutHandler(h, timeout, `{"error":"request timed out"}`)
	}

	root := http.NewServeMux()
	root.Handle("/metrics", m.Handler())
	root.Handle("/", withJSONHeaders(withGzip(recoverPanic(lg, limitBody(h)))))
	return root
}

// handleGetQuotes projects the current snapshot with the query's search and sort. Without
// either parameter it returns the board's own view.
func handleGetQuotes(w http.ResponseWriter, r *http.Request, b *board.Board) {
	q := r.URL.Query()
	if !q.Has("search") && !q.Has("sort") {
		writeJSON(w, http.StatusOK, toResponse(b.View()))
		return
	}
	sort, err := view.ParseSortKey(q.Get("sort"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b.ViewFor(view.State{Search: q.Get("search"), Sort: sort})))
}

// handlePostView updates the board's search text and sort key.
func handlePostView(w http.ResponseWriter, r *http.Request, b *board.Board) {
	var body viewBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Sort != nil {
		sort, err := view.ParseSortKey(*body.Sort)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.SetSortKey(sort)
	}
	if body.Search != nil {
		b.SetSearchText(*body.Search)
	}
	writeJSON(w, http.StatusOK, toResponse(b.View()))
}

func toResponse(res board.Result) quotesResponse {
	out := quotesResponse{
		Rows:       view.Rows(res.Quotes),
		State:      res.State,
		Error:      res.Error,
		Loading:    res.Loading,
		Generation: res.Generation,
	}
	if !res.FetchedAt.IsZero() {
		t := res.FetchedAt
		out.FetchedAt = &t
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
