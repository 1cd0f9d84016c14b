// Package ctistest runs an in-memory CTIS platform for tests. It speaks
// the subset of the Eve-style REST API the bridge uses: bulk POST with
// 201/409 classification, where/page lookups, conditional PATCH on
// settings and the dossier whitelist validation.
package ctistest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	Username = "analyst"
	Password = "s3cret"
	Token    = "test-token"
)

// Request is one call the platform received.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type forced struct {
	status int
	body   string
}

// Server is a fake CTIS platform.
type Server struct {
	*httptest.Server

	// PageSize bounds list responses
	PageSize int

	// EnforceWhitelist makes dossier creation validate originator and
	// addressee against the whitelist settings
	EnforceWhitelist bool

	mu       sync.Mutex
	data     map[string][]map[string]any
	unique   map[string]string
	forced   map[string][]forced
	requests []Request
}

// NewServer starts a platform with the uniqueness rules the real one
// applies to alerts, EEIs and identities.
func NewServer() *Server {
	s := &Server{
		PageSize: 25,
		data:     make(map[string][]map[string]any),
		unique: map[string]string{
			"alerts":     "title",
			"eeis":       "name",
			"identities": "name",
		},
		forced: make(map[string][]forced),
	}

	router := mux.NewRouter()
	router.HandleFunc("/login", s.login).Methods(http.MethodGet)
	router.HandleFunc("/{collection}", s.auth(s.list)).Methods(http.MethodGet)
	router.HandleFunc("/{collection}", s.auth(s.create)).Methods(http.MethodPost)
	router.HandleFunc("/{collection}/{id}", s.auth(s.get)).Methods(http.MethodGet)
	router.HandleFunc("/{collection}/{id}", s.auth(s.patch)).Methods(http.MethodPatch)

	s.Server = httptest.NewServer(s.record(router))
	return s
}

// Seed stores a document as if it had been created earlier and returns its id.
func (s *Server) Seed(collection string, doc map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(collection, doc)["_id"].(string)
}

// SeedSetting stores a whitelist setting with the given allowed values.
func (s *Server) SeedSetting(name string, values ...string) string {
	return s.Seed("settings", map[string]any{
		"parameter_name":  name,
		"parameter_value": map[string]any{"list_values": values},
	})
}

// FailNext makes the next POST to collection answer with status and body.
func (s *Server) FailNext(collection string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[collection] = append(s.forced[collection], forced{status: status, body: body})
}

// Docs returns a copy of the documents stored in collection.
func (s *Server) Docs(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data[collection])
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Writes counts every mutating request.
func (s *Server) Writes() int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			n++
		}
	}
	return n
}

// SettingValues returns the allowed values of a whitelist setting.
func (s *Server) SettingValues(name string) []string {
	for _, doc := range s.Docs("settings") {
		if doc["parameter_name"] == name {
			return stringList(doc["parameter_value"].(map[string]any)["list_values"])
		}
	}
	return nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
		s.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"_error": map[string]any{"message": "unauthorized"}})
			return
		}
		next(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != Username || pass != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"_error": map[string]any{"message": "bad credentials"}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"access_token": Token}})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	var docs []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil || len(docs) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"_error": map[string]any{"message": "expected a singleton array"}})
		return
	}
	doc := docs[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	if queue := s.forced[collection]; len(queue) > 0 {
		s.forced[collection] = queue[1:]
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(queue[0].status)
		_, _ = w.Write([]byte(queue[0].body))
		return
	}

	if sources, ok := doc["x-sources"].([]any); collection != "relationships" && (!ok || len(sources) == 0) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"_issues": map[string]any{"x-sources": "required field"}})
		return
	}

	if field, ok := s.unique[collection]; ok {
		for _, existing := range s.data[collection] {
			if existing[field] == doc[field] {
				writeJSON(w, http.StatusConflict, map[string]any{
					"_error": map[string]any{"code": 409, "message": map[string]any{"_id": existing["_id"]}},
				})
				return
			}
		}
	}

	if collection == "x-dossiers" && s.EnforceWhitelist {
		issues := map[string]any{}
		if !slices.Contains(s.allowed("xdossiers_originator_allowed"), fmt.Sprint(doc["originator"])) {
			issues["originator"] = "value not allowed"
		}
		for _, a := range stringList(doc["addressee"]) {
			if !slices.Contains(s.allowed("xdossiers_addressee_allowed"), a) {
				issues["addressee"] = "value not allowed"
			}
		}
		if len(issues) > 0 {
			writeJSON(w, http.StatusConflict, map[string]any{"_issues": issues, "_status": "ERR"})
			return
		}
	}

	stored := s.insert(collection, doc)
	if collection == "relationships" {
		writeJSON(w, http.StatusCreated, stored)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"_id": stored["_id"], "_status": "OK"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	var where map[string]any
	if raw := r.URL.Query().Get("where"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &where); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"_error": map[string]any{"message": "bad where"}})
			return
		}
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	var matched []map[string]any
	for _, doc := range s.data[collection] {
		ok := true
		for k, v := range where {
			if doc[k] != v {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	s.mu.Unlock()

	start := (page - 1) * s.PageSize
	end := min(start+s.PageSize, len(matched))
	items := []map[string]any{}
	if start < len(matched) {
		items = matched[start:end]
	}

	links := map[string]any{}
	if end < len(matched) {
		links["next"] = map[string]any{"href": fmt.Sprintf("%s?page=%d", collection, page+1)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_items": items,
		"_links": links,
		"_meta":  map[string]any{"page": page, "max_results": s.PageSize, "total": len(matched)},
	})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.mu.Lock()
	doc := s.find(vars["collection"], vars["id"])
	s.mu.Unlock()
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"_error": map[string]any{"message": "not found"}})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.find(vars["collection"], vars["id"])
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"_error": map[string]any{"message": "not found"}})
		return
	}
	if r.Header.Get("If-Match") != doc["_etag"] {
		writeJSON(w, http.StatusPreconditionFailed, map[string]any{"_error": map[string]any{"message": "etag mismatch"}})
		return
	}

	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"_error": map[string]any{"message": "bad body"}})
		return
	}
	for k, v := range changes {
		if strings.HasPrefix(k, "_") {
			continue
		}
		doc[k] = v
	}
	doc["_etag"] = uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]any{"_id": doc["_id"], "_etag": doc["_etag"], "_status": "OK"})
}

func (s *Server) insert(collection string, doc map[string]any) map[string]any {
	// Round-trip through JSON so seeded Go values compare like decoded ones.
	var stored map[string]any
	raw, _ := json.Marshal(doc)
	_ = json.Unmarshal(raw, &stored)

	id := uuid.NewString()
	stored["_id"] = id
	stored["_etag"] = uuid.NewString()
	s.data[collection] = append(s.data[collection], stored)
	return stored
}

func (s *Server) find(collection, id string) map[string]any {
	for _, doc := range s.data[collection] {
		if doc["_id"] == id {
			return doc
		}
	}
	return nil
}

func (s *Server) allowed(setting string) []string {
	for _, doc := range s.data["settings"] {
		if doc["parameter_name"] == setting {
			if pv, ok := doc["parameter_value"].(map[string]any); ok {
				return stringList(pv["list_values"])
			}
		}
	}
	return nil
}

func stringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
