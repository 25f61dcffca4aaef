package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sopdesk/api/internal/auth"
	"sopdesk/api/internal/store"
)

// memoryStore keeps SOPs in a map so HTTP tests can exercise full
// create/read/update/delete round trips with owner scoping.
type memoryStore struct {
	fakeStore
	mu   sync.Mutex
	sops map[string]store.SOP
}

func newMemoryStore(users map[string]store.User) *memoryStore {
	ms := &memoryStore{sops: make(map[string]store.SOP)}
	ms.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
		if user, ok := users[id]; ok {
			return user, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	return ms
}

func (m *memoryStore) InsertSOP(_ context.Context, sop store.SOP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sops[sop.ID] = sop
	return nil
}

func (m *memoryStore) ListSOPs(_ context.Context, ownerID string) ([]store.SOP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []store.SOP{}
	for _, sop := range m.sops {
		if ownerID == "" || sop.CreatedBy == ownerID {
			items = append(items, sop)
		}
	}
	return items, nil
}

func (m *memoryStore) GetSOP(_ context.Context, sopID, ownerID string) (store.SOP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sop, ok := m.sops[sopID]
	if !ok || (ownerID != "" && sop.CreatedBy != ownerID) {
		return store.SOP{}, sql.ErrNoRows
	}
	return sop, nil
}

func (m *memoryStore) UpdateSOP(_ context.Context, sop store.SOP, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sops[sop.ID]
	if !ok || (ownerID != "" && existing.CreatedBy != ownerID) {
		return sql.ErrNoRows
	}
	m.sops[sop.ID] = sop
	return nil
}

func (m *memoryStore) UpdateSOPConfig(_ context.Context, sopID, ownerID string, cfg json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sop, ok := m.sops[sopID]
	if !ok || (ownerID != "" && sop.CreatedBy != ownerID) {
		return sql.ErrNoRows
	}
	sop.PDFConfig = cfg
	m.sops[sopID] = sop
	return nil
}

func (m *memoryStore) DeleteSOP(_ context.Context, sopID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sop, ok := m.sops[sopID]
	if !ok || (ownerID != "" && sop.CreatedBy != ownerID) {
		return sql.ErrNoRows
	}
	delete(m.sops, sopID)
	return nil
}

func newSOPServer(t *testing.T) (*HTTPServer, *memoryStore) {
	t.Helper()
	ms := newMemoryStore(map[string]store.User{
		"usr-author": {ID: "usr-author", DisplayName: "Dana Ortiz", Role: "author"},
		"usr-other":  {ID: "usr-other", DisplayName: "Sam Lee", Role: "author"},
		"usr-admin":  {ID: "usr-admin", DisplayName: "Admin", Role: "admin"},
	})
	svc := &Service{
		cfg:      testConfig(),
		store:    ms,
		sessions: ms,
		renderer: &fakeRenderer{},
	}
	return NewHTTPServer(svc, "*"), ms
}

func issueTestToken(t *testing.T, userID, name, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  userID,
		Name: name,
		Role: role,
		JTI:  "jti-" + userID,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

const createBody = `{
	"title": "Chemical Spill Response",
	"department": "Safety",
	"responsiblePerson": "Dana Ortiz",
	"objective": "Contain and clean chemical spills safely.",
	"responsibility": "All lab technicians.",
	"procedure": "Follow the steps listed below.",
	"references": ["OSHA 1910.120"],
	"steps": ["Evacuate the area", "Notify safety officer"],
	"effectiveDate": "2025-03-01T00:00:00Z",
	"revisionDate": "2025-06-15T00:00:00Z"
}`

func TestSOPRoutesRequireAuth(t *testing.T) {
	server, _ := newSOPServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/sops"},
		{http.MethodPost, "/api/sops"},
		{http.MethodGet, "/api/sops/sop-1"},
		{http.MethodPut, "/api/sops/sop-1"},
		{http.MethodDelete, "/api/sops/sop-1"},
		{http.MethodGet, "/api/sops/sop-1/pdf"},
		{http.MethodGet, "/api/search"},
	}
	for _, endpoint := range paths {
		rr := doRequest(server, endpoint.method, endpoint.path, "", "{}")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", endpoint.method, endpoint.path, rr.Code)
		}
	}
}

func TestSOPCRUDLifecycle(t *testing.T) {
	server, _ := newSOPServer(t)
	token := issueTestToken(t, "usr-author", "Dana Ortiz", "author")

	rr := doRequest(server, http.MethodPost, "/api/sops", token, createBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created store.SOP
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse create response: %v", err)
	}
	if created.ID == "" || created.RevisionNumber != "1.0" {
		t.Fatalf("unexpected created record: %+v", created)
	}
	if created.CreatedByName != "Dana Ortiz" {
		t.Fatalf("expected creator name from session, got %q", created.CreatedByName)
	}

	rr = doRequest(server, http.MethodGet, "/api/sops/"+created.ID, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	var fetched store.SOP
	if err := json.Unmarshal(rr.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("parse get response: %v", err)
	}
	if fetched.Title != "Chemical Spill Response" || len(fetched.Steps) != 2 {
		t.Fatalf("unexpected fetched record: %+v", fetched)
	}

	rr = doRequest(server, http.MethodPut, "/api/sops/"+created.ID, token, `{"title":"Chemical Spill Response v2","revisionNumber":"2.0"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var updated store.SOP
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("parse update response: %v", err)
	}
	if updated.Title != "Chemical Spill Response v2" || updated.RevisionNumber != "2.0" {
		t.Fatalf("unexpected updated record: %+v", updated)
	}
	if updated.Department != "Safety" {
		t.Fatalf("expected untouched fields kept, got %+v", updated)
	}

	rr = doRequest(server, http.MethodGet, "/api/sops", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var listing struct {
		SOPs []store.SOP `json:"sops"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listing); err != nil {
		t.Fatalf("parse list response: %v", err)
	}
	if len(listing.SOPs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(listing.SOPs))
	}

	rr = doRequest(server, http.MethodDelete, "/api/sops/"+created.ID, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	var deleted map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("parse delete response: %v", err)
	}
	if deleted["ok"] != true {
		t.Fatalf("expected ok:true, got %v", deleted)
	}

	rr = doRequest(server, http.MethodGet, "/api/sops/"+created.ID, token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rr.Code)
	}
}

func TestSOPCreateValidationStatus(t *testing.T) {
	server, _ := newSOPServer(t)
	token := issueTestToken(t, "usr-author", "Dana Ortiz", "author")

	rr := doRequest(server, http.MethodPost, "/api/sops", token, `{"title":"Only a title"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestCrossOwnerAccessReturnsNotFound(t *testing.T) {
	server, _ := newSOPServer(t)
	owner := issueTestToken(t, "usr-author", "Dana Ortiz", "author")
	other := issueTestToken(t, "usr-other", "Sam Lee", "author")

	rr := doRequest(server, http.MethodPost, "/api/sops", owner, createBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rr.Code)
	}
	var created store.SOP
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse create response: %v", err)
	}

	// Another author must not learn the record exists.
	for _, endpoint := range []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/sops/" + created.ID, ""},
		{http.MethodPut, "/api/sops/" + created.ID, `{"title":"Hijacked"}`},
		{http.MethodDelete, "/api/sops/" + created.ID, ""},
		{http.MethodGet, "/api/sops/" + created.ID + "/pdf", ""},
	} {
		rr := doRequest(server, endpoint.method, endpoint.path, other, endpoint.body)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", endpoint.method, endpoint.path, rr.Code)
		}
	}
}

func TestAdminSeesAllRecords(t *testing.T) {
	server, _ := newSOPServer(t)
	owner := issueTestToken(t, "usr-author", "Dana Ortiz", "author")
	admin := issueTestToken(t, "usr-admin", "Admin", "admin")

	rr := doRequest(server, http.MethodPost, "/api/sops", owner, createBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rr.Code)
	}
	var created store.SOP
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse create response: %v", err)
	}

	rr = doRequest(server, http.MethodGet, "/api/sops/"+created.ID, admin, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("admin get: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/api/sops", admin, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200, got %d", rr.Code)
	}
	var listing struct {
		SOPs []store.SOP `json:"sops"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listing); err != nil {
		t.Fatalf("parse list response: %v", err)
	}
	if len(listing.SOPs) != 1 {
		t.Fatalf("expected admin to see the record, got %d", len(listing.SOPs))
	}
}

func TestHealthAndReady(t *testing.T) {
	server, _ := newSOPServer(t)

	rr := doRequest(server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}

	rr = doRequest(server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != "ready" {
		t.Fatalf("expected ready status, got %v", payload["status"])
	}
}
