// Package apitest runs an in-memory questlog backend for tests and offline
// development.
//
// The server speaks the same envelope and endpoints as the real backend,
// assigns nanoid record ids, checks the bearer token, and can be told to
// fail selected requests:
//
//	srv := apitest.NewServer("secret")
//	defer srv.Close()
//	srv.FailWhen(func(r apitest.Request) bool {
//	    return r.Method == http.MethodPost && r.Collection == "tasks"
//	})
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

// Collections served under /api/.
const (
	Tasks    = "tasks"
	Goals    = "goals"
	Sessions = "timer-sessions"
)

// Request is one logged request.
type Request struct {
	Method     string
	Path       string
	Collection string // "tasks", "goals", "timer-sessions", or "" for other paths
	ID         string // record id for /api/<collection>/<id>
	RequestID  string
	Body       []byte
}

type collection struct {
	order   []string
	records map[string]map[string]interface{}
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	token  string
	newID  func() string
	userID string

	mu          sync.Mutex
	collections map[string]*collection
	failWhen    func(Request) bool
	requests    []Request
}

// NewServer starts a fake backend that accepts the given bearer token.
func NewServer(token string) *Server {
	s := newServer(token)
	s.Server = httptest.NewServer(s)
	return s
}

// NewUnstartedServer returns a fake backend that is not yet listening.
// The caller sets Config.Addr if needed and calls Start.
func NewUnstartedServer(token string) *Server {
	s := newServer(token)
	s.Server = httptest.NewUnstartedServer(s)
	return s
}

func newServer(token string) *Server {
	gen, err := nanoid.Standard(21)
	if err != nil {
		panic(fmt.Sprintf("apitest: failed to create id generator: %v", err))
	}
	return &Server{
		token:  token,
		newID:  gen,
		userID: "user_" + gen()[:8],
		collections: map[string]*collection{
			Tasks:    {records: map[string]map[string]interface{}{}},
			Goals:    {records: map[string]map[string]interface{}{}},
			Sessions: {records: map[string]map[string]interface{}{}},
		},
	}
}

// Token returns the accepted bearer token.
func (s *Server) Token() string { return s.token }

// FailWhen makes every request matching fn answer 500. nil clears it.
func (s *Server) FailWhen(fn func(Request) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWhen = fn
}

// Requests returns a copy of the request log.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns the number of requests received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Seed stores a raw record and returns its id. A missing "id" is generated.
func (s *Server) Seed(name string, record map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[name]
	if c == nil {
		panic("apitest: unknown collection " + name)
	}
	rec := cloneRecord(record)
	id, _ := rec["id"].(string)
	if id == "" {
		id = s.newID()
		rec["id"] = id
	}
	s.put(c, id, rec)
	return id
}

// Record returns a copy of a stored record, or nil.
func (s *Server) Record(name, id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[name]
	if c == nil || c.records[id] == nil {
		return nil
	}
	return cloneRecord(c.records[id])
}

// Len returns the number of records in a collection.
func (s *Server) Len(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.collections[name]; c != nil {
		return len(c.records)
	}
	return 0
}

// Remove deletes a record directly, as if another device had deleted it.
func (s *Server) Remove(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.collections[name]; c != nil {
		s.remove(c, id)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	req := Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: r.Header.Get("X-Request-ID"),
		Body:      body,
	}
	rest, isAPI := strings.CutPrefix(r.URL.Path, "/api/")
	if isAPI {
		parts := strings.SplitN(rest, "/", 2)
		if _, ok := s.collections[parts[0]]; ok {
			req.Collection = parts[0]
			if len(parts) == 2 {
				req.ID = parts[1]
			}
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.failWhen
	s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+s.token {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}
	if fail != nil && fail(req) {
		writeError(w, http.StatusInternalServerError, "injected failure")
		return
	}

	switch {
	case r.URL.Path == "/health":
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/api/auth/me" && r.Method == http.MethodGet:
		writeData(w, http.StatusOK, map[string]string{"id": s.userID, "email": "dev@questlog.local", "name": "Dev"})
	case req.Collection != "" && req.ID == "":
		s.serveCollection(w, r.Method, req)
	case req.Collection != "":
		s.serveRecord(w, r.Method, req)
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *Server) serveCollection(w http.ResponseWriter, method string, req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[req.Collection]

	switch method {
	case http.MethodGet:
		out := make([]map[string]interface{}, 0, len(c.order))
		for _, id := range c.order {
			out = append(out, c.records[id])
		}
		writeData(w, http.StatusOK, out)
	case http.MethodPost:
		rec, err := decodeRecord(req.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if title, _ := rec["title"].(string); req.Collection != Sessions && title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		id := s.newID()
		rec["id"] = id
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, ok := rec["createdAt"]; !ok {
			rec["createdAt"] = now
		}
		rec["updatedAt"] = now
		if req.Collection == Sessions {
			rec["userId"] = s.userID
		}
		s.put(c, id, rec)
		writeData(w, http.StatusCreated, rec)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) serveRecord(w http.ResponseWriter, method string, req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[req.Collection]
	existing := c.records[req.ID]
	if existing == nil {
		writeError(w, http.StatusNotFound, strings.TrimSuffix(req.Collection, "s")+" not found")
		return
	}

	switch method {
	case http.MethodGet:
		writeData(w, http.StatusOK, existing)
	case http.MethodPut:
		rec, err := decodeRecord(req.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for k, v := range rec {
			existing[k] = v
		}
		existing["id"] = req.ID
		existing["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
		writeData(w, http.StatusOK, existing)
	case http.MethodDelete:
		s.remove(c, req.ID)
		writeData(w, http.StatusOK, nil)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) put(c *collection, id string, rec map[string]interface{}) {
	if _, exists := c.records[id]; !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = rec
}

func (s *Server) remove(c *collection, id string) {
	if _, exists := c.records[id]; !exists {
		return
	}
	delete(c.records, id)
	for i, candidate := range c.order {
		if candidate == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func decodeRecord(body []byte) (map[string]interface{}, error) {
	rec := map[string]interface{}{}
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("invalid json body: %v", err)
	}
	delete(rec, "id")
	return rec, nil
}

func cloneRecord(rec map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
}
