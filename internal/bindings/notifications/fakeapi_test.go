package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/louisbranch/dataplane/internal/dataplane/transport"
)

// fakeAPI is an in-memory notifications server.
type fakeAPI struct {
	mu    sync.Mutex
	items []Notification
	calls map[string]int

	// listFailures are statuses returned by the next list calls, in order.
	listFailures []int
	// listGate, when set, holds list responses until closed.
	listGate chan struct{}
	// writeStatus, when non-zero, fails every write with that status.
	writeStatus int
	// writeFailures are statuses returned by the next writes, in order,
	// ahead of writeStatus.
	writeFailures []int
	// writeGate, when set, holds write responses until closed.
	writeGate chan struct{}
	// writeArrived receives one value per write request, once its gate and
	// status are fixed.
	writeArrived chan struct{}

	now func() time.Time
	srv *httptest.Server
}

func newFakeAPI(t *testing.T, items ...Notification) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		items:        items,
		calls:        map[string]int{},
		writeArrived: make(chan struct{}, 16),
		now:          func() time.Time { return time.Date(2026, 2, 21, 20, 25, 0, 0, time.UTC) },
	}
	r := mux.NewRouter()
	r.HandleFunc("/notifications", api.list).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", api.unread).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", api.write(api.readAll)).Methods(http.MethodPut)
	r.HandleFunc("/notifications/{id}/read", api.write(api.markRead)).Methods(http.MethodPut)
	r.HandleFunc("/notifications/{id}", api.write(api.remove)).Methods(http.MethodDelete)
	api.srv = httptest.NewServer(r)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) count(route string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[route]
}

func (a *fakeAPI) record(route string) {
	a.mu.Lock()
	a.calls[route]++
	a.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": message}})
}

func (a *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	a.record("GET /notifications")
	a.mu.Lock()
	gate := a.listGate
	var failure int
	if len(a.listFailures) > 0 {
		failure = a.listFailures[0]
		a.listFailures = a.listFailures[1:]
	}
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if failure != 0 {
		writeError(w, failure, "list failed")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if page < 1 || size < 1 {
		writeError(w, http.StatusBadRequest, "page and pageSize are required")
		return
	}

	a.mu.Lock()
	var matched []Notification
	for _, n := range a.items {
		if v := q.Get("userId"); v != "" && n.UserID != v {
			continue
		}
		if v := q.Get("isRead"); v != "" && strconv.FormatBool(n.IsRead) != v {
			continue
		}
		matched = append(matched, n)
	}
	a.mu.Unlock()

	total := len(matched)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	pages := (total + size - 1) / size
	writeJSON(w, http.StatusOK, transport.Envelope[[]Notification]{
		Data: slices.Clone(matched[start:end]),
		Meta: &transport.PageMeta{
			CurrentPage:     page,
			PerPage:         size,
			Total:           total,
			TotalPages:      pages,
			HasNextPage:     page < pages,
			HasPreviousPage: page > 1,
		},
	})
}

func (a *fakeAPI) unread(w http.ResponseWriter, r *http.Request) {
	a.record("GET /notifications/unread-count")
	user := r.URL.Query().Get("userId")
	a.mu.Lock()
	count := 0
	for _, n := range a.items {
		if !n.IsRead && (user == "" || n.UserID == user) {
			count++
		}
	}
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]int{"count": count}})
}

func (a *fakeAPI) write(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.record(r.Method + " " + r.URL.Path)
		a.mu.Lock()
		gate, status := a.writeGate, a.writeStatus
		if len(a.writeFailures) > 0 {
			status = a.writeFailures[0]
			a.writeFailures = a.writeFailures[1:]
		}
		a.mu.Unlock()
		a.writeArrived <- struct{}{}
		if gate != nil {
			<-gate
		}
		if status != 0 {
			writeError(w, status, "write failed")
			return
		}
		next(w, r)
	}
}

func (a *fakeAPI) markRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		IsRead bool `json:"isRead"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.items {
		if a.items[i].ID != id {
			continue
		}
		a.items[i].IsRead = body.IsRead
		a.items[i].ReadAt = nil
		if body.IsRead {
			at := a.now()
			a.items[i].ReadAt = &at
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": a.items[i]})
		return
	}
	writeError(w, http.StatusNotFound, "notification not found")
}

func (a *fakeAPI) remove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := slices.IndexFunc(a.items, func(n Notification) bool { return n.ID == id })
	if idx < 0 {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	a.items = slices.Delete(a.items, idx, idx+1)
	w.WriteHeader(http.StatusNoContent)
}

func (a *fakeAPI) readAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.items {
		if body.UserID == "" || a.items[i].UserID == body.UserID {
			a.items[i].IsRead = true
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
