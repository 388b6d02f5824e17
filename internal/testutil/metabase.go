package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/embedash/internal/metabase"
	"github.com/hugh/embedash/pkg/config"
)

// FakeMetabase is an in-memory stand-in for a Metabase instance, covering the
// endpoints the client talks to. State is inspectable from tests.
type FakeMetabase struct {
	Server *httptest.Server

	mu     sync.Mutex
	nextID int

	users       []metabase.User
	groups      []metabase.Group
	collections []metabase.Collection
	databases   []metabase.Database
	dashboards  []metabase.DashboardRef
	items       map[int][]metabase.CollectionItem
	memberships []FakeMembership
	graph       map[string]interface{}
	embedded    map[string]bool

	// Counters for asserting on traffic
	Logins          int
	GraphPuts       int
	CollectionPuts  int
	GlobalEmbedding bool

	// Failure injection
	FailGroupNames  map[string]bool
	FailCollections bool
	RejectFirstAuth bool
	rejectedOnce    bool
}

type FakeMembership struct {
	GroupID int
	UserID  int
}

func NewFakeMetabase(t *testing.T) *FakeMetabase {
	t.Helper()

	f := &FakeMetabase{
		nextID:         100,
		items:          make(map[int][]metabase.CollectionItem),
		graph:          map[string]interface{}{"revision": float64(1), "groups": map[string]interface{}{}},
		embedded:       make(map[string]bool),
		FailGroupNames: make(map[string]bool),
	}
	f.groups = append(f.groups, metabase.Group{ID: 1, Name: "All Users"})

	r := chi.NewRouter()
	r.Post("/api/session", f.handleSession)
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/session/properties", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, map[string]string{"setup-token": ""})
	})

	r.Group(func(r chi.Router) {
		r.Use(f.requireSession)

		r.Put("/api/setting/enable-embedding", func(w http.ResponseWriter, _ *http.Request) {
			f.mu.Lock()
			f.GlobalEmbedding = true
			f.mu.Unlock()
			writeBody(w, http.StatusOK, map[string]bool{"value": true})
		})

		r.Post("/api/user", f.handleCreateUser)
		r.Get("/api/user", f.handleListUsers)

		r.Post("/api/collection", f.handleCreateCollection)
		r.Put("/api/collection/graph", f.handleCollectionGraph)
		r.Put("/api/collection/{id}", func(w http.ResponseWriter, _ *http.Request) {
			writeBody(w, http.StatusOK, map[string]bool{"enable_embedding": true})
		})
		r.Get("/api/collection/{id}/items", f.handleCollectionItems)

		r.Post("/api/database", f.handleCreateDatabase)
		r.Get("/api/database", f.handleListDatabases)

		r.Post("/api/permissions/group", f.handleCreateGroup)
		r.Get("/api/permissions/group", f.handleListGroups)
		r.Get("/api/permissions/graph", f.handleGetGraph)
		r.Put("/api/permissions/graph", f.handlePutGraph)
		r.Post("/api/permissions/membership", f.handleMembership)

		r.Post("/api/dashboard", f.handleCreateDashboard)
		r.Put("/api/dashboard/{id}", f.handleEnableEmbedding("dashboard"))
		r.Put("/api/card/{id}", f.handleEnableEmbedding("card"))
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns a metabase client pointed at the fake server.
func (f *FakeMetabase) Client(t *testing.T) *metabase.Client {
	t.Helper()
	cfg := &config.MetabaseConfig{
		URL:             f.Server.URL,
		PublicURL:       "http://metabase.example.com",
		AdminEmail:      "admin@example.com",
		AdminPassword:   "adminpassword",
		EmbeddingSecret: "test-embedding-secret",
		EmbedExpiryMins: 60,
	}
	return metabase.NewClient(cfg, metabase.NewMemorySessionStore(), TestLogger())
}

func (f *FakeMetabase) handleSession(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.Logins++
	id := fmt.Sprintf("fake-session-%d", f.Logins)
	f.mu.Unlock()
	writeBody(w, http.StatusOK, map[string]string{"id": id})
}

func (f *FakeMetabase) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Metabase-Session")
		if token == "" {
			writeBody(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated"})
			return
		}
		f.mu.Lock()
		reject := f.RejectFirstAuth && !f.rejectedOnce
		if reject {
			f.rejectedOnce = true
		}
		f.mu.Unlock()
		if reject {
			writeBody(w, http.StatusUnauthorized, map[string]string{"message": "Session expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeMetabase) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.nextID++
	user := metabase.User{ID: f.nextID, Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
	f.users = append(f.users, user)
	f.mu.Unlock()

	writeBody(w, http.StatusOK, user)
}

func (f *FakeMetabase) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	users := append([]metabase.User(nil), f.users...)
	f.mu.Unlock()
	// Newer Metabase versions wrap user lists in a data envelope
	writeBody(w, http.StatusOK, map[string]interface{}{"data": users})
}

func (f *FakeMetabase) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	fail := f.FailCollections
	f.mu.Unlock()
	if fail {
		writeBody(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.nextID++
	col := metabase.Collection{ID: f.nextID, Name: req.Name, Description: req.Description}
	f.collections = append(f.collections, col)
	f.mu.Unlock()

	writeBody(w, http.StatusOK, col)
}

func (f *FakeMetabase) handleCollectionGraph(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.CollectionPuts++
	f.mu.Unlock()
	writeBody(w, http.StatusOK, map[string]interface{}{"revision": 2})
}

func (f *FakeMetabase) handleCollectionItems(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	f.mu.Lock()
	items := append([]metabase.CollectionItem(nil), f.items[id]...)
	f.mu.Unlock()
	writeBody(w, http.StatusOK, map[string]interface{}{"data": items})
}

func (f *FakeMetabase) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Engine string `json:"engine"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.nextID++
	db := metabase.Database{ID: f.nextID, Name: req.Name, Engine: req.Engine}
	f.databases = append(f.databases, db)
	f.mu.Unlock()

	writeBody(w, http.StatusOK, db)
}

func (f *FakeMetabase) handleListDatabases(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	dbs := append([]metabase.Database(nil), f.databases...)
	f.mu.Unlock()
	writeBody(w, http.StatusOK, map[string]interface{}{"data": dbs})
}

func (f *FakeMetabase) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailGroupNames[req.Name] {
		writeBody(w, http.StatusBadRequest, map[string]string{"message": "A group with that name already exists."})
		return
	}
	for _, g := range f.groups {
		if g.Name == req.Name {
			writeBody(w, http.StatusBadRequest, map[string]string{"message": "A group with that name already exists."})
			return
		}
	}

	f.nextID++
	group := metabase.Group{ID: f.nextID, Name: req.Name}
	f.groups = append(f.groups, group)
	writeBody(w, http.StatusOK, group)
}

func (f *FakeMetabase) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	groups := append([]metabase.Group(nil), f.groups...)
	f.mu.Unlock()
	// The groups endpoint returns a bare array
	writeBody(w, http.StatusOK, groups)
}

func (f *FakeMetabase) handleGetGraph(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	data, _ := json.Marshal(f.graph)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (f *FakeMetabase) handlePutGraph(w http.ResponseWriter, r *http.Request) {
	var graph map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&graph); err != nil {
		writeBody(w, http.StatusBadRequest, map[string]string{"message": "bad graph"})
		return
	}
	f.mu.Lock()
	f.graph = graph
	f.GraphPuts++
	f.mu.Unlock()
	writeBody(w, http.StatusOK, graph)
}

func (f *FakeMetabase) handleMembership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID int `json:"group_id"`
		UserID  int `json:"user_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.memberships = append(f.memberships, FakeMembership{GroupID: req.GroupID, UserID: req.UserID})
	f.mu.Unlock()
	writeBody(w, http.StatusOK, map[string]int{"membership_id": 1})
}

func (f *FakeMetabase) handleCreateDashboard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		CollectionID int    `json:"collection_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.nextID++
	dash := metabase.DashboardRef{ID: f.nextID, Name: req.Name, CollectionID: &req.CollectionID}
	f.dashboards = append(f.dashboards, dash)
	f.items[req.CollectionID] = append(f.items[req.CollectionID], metabase.CollectionItem{
		ID:    dash.ID,
		Name:  dash.Name,
		Model: "dashboard",
	})
	f.mu.Unlock()

	writeBody(w, http.StatusOK, dash)
}

func (f *FakeMetabase) handleEnableEmbedding(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		f.mu.Lock()
		f.embedded[kind+"/"+id] = true
		f.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]bool{"enable_embedding": true})
	}
}

// ==================== State helpers ====================

// AddDatabase registers a database as if an operator had already added it.
func (f *FakeMetabase) AddDatabase(name string) metabase.Database {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	db := metabase.Database{ID: f.nextID, Name: name, Engine: "postgres"}
	f.databases = append(f.databases, db)
	return db
}

// AddGroup pre-seeds a permission group.
func (f *FakeMetabase) AddGroup(name string) metabase.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	group := metabase.Group{ID: f.nextID, Name: name}
	f.groups = append(f.groups, group)
	return group
}

// AddCollectionItem places an item inside a collection listing.
func (f *FakeMetabase) AddCollectionItem(collectionID int, item metabase.CollectionItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[collectionID] = append(f.items[collectionID], item)
}

// Users returns a snapshot of the created users.
func (f *FakeMetabase) Users() []metabase.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metabase.User(nil), f.users...)
}

// Groups returns a snapshot of the permission groups.
func (f *FakeMetabase) Groups() []metabase.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metabase.Group(nil), f.groups...)
}

// Collections returns a snapshot of the created collections.
func (f *FakeMetabase) Collections() []metabase.Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metabase.Collection(nil), f.collections...)
}

// Memberships returns a snapshot of group memberships.
func (f *FakeMetabase) Memberships() []FakeMembership {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeMembership(nil), f.memberships...)
}

// EmbeddingEnabled reports whether embedding was switched on for a resource.
func (f *FakeMetabase) EmbeddingEnabled(kind string, id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedded[kind+"/"+strconv.Itoa(id)]
}

// Graph returns the stored permissions graph.
func (f *FakeMetabase) Graph() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := json.Marshal(f.graph)
	var out map[string]interface{}
	_ = json.Unmarshal(data, &out)
	return out
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
