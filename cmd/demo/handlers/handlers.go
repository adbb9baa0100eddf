// Package handlers is a small fake provider API for trying the gateway.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// ConsumerHeader is the header the gateway's default identity config reads.
const ConsumerHeader = "X-Consumer-ID"

// Response is a generic JSON response structure
type Response struct {
	Provider  string `json:"provider"`
	Consumer  string `json:"consumer,omitempty"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Item is a resource served by the provider.
type Item struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by,omitempty"`
}

// Provider serves the demo API for one provider id.
type Provider struct {
	id     string
	nextID atomic.Int64

	mu    sync.RWMutex
	items []Item
}

// New creates a provider with a couple of seeded items.
func New(id string) *Provider {
	p := &Provider{id: id}
	p.add("first", "")
	p.add("second", "")
	return p
}

// Routes returns the provider's router.
func (p *Provider) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", p.Health)
	r.Get("/items", p.List)
	r.Post("/items", p.Create)
	r.Get("/whoami", p.WhoAmI)
	return r
}

func (p *Provider) add(name, consumer string) Item {
	item := Item{ID: p.nextID.Add(1), Name: name, CreatedBy: consumer}
	p.mu.Lock()
	p.items = append(p.items, item)
	p.mu.Unlock()
	return item
}

// Health reports that the provider is up
func (p *Provider) Health(w http.ResponseWriter, r *http.Request) {
	p.write(w, r, http.StatusOK, "healthy", nil)
}

// List returns all items, optionally filtered by ?q=name.
func (p *Provider) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	p.mu.RLock()
	out := make([]Item, 0, len(p.items))
	for _, item := range p.items {
		if q == "" || item.Name == q {
			out = append(out, item)
		}
	}
	p.mu.RUnlock()

	p.write(w, r, http.StatusOK, "items", out)
}

// Create adds an item from a JSON body like {"name":"x"}.
func (p *Provider) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		p.write(w, r, http.StatusBadRequest, "body must be {\"name\": \"...\"}", nil)
		return
	}

	item := p.add(req.Name, r.Header.Get(ConsumerHeader))
	p.write(w, r, http.StatusCreated, "created", item)
}

// WhoAmI echoes the identity the gateway forwarded.
func (p *Provider) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p.write(w, r, http.StatusOK, "identity", map[string]string{
		"forwarded_for": r.Header.Get("X-Forwarded-For"),
		"path":          r.URL.Path,
	})
}

func (p *Provider) write(w http.ResponseWriter, r *http.Request, status int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Provider:  p.id,
		Consumer:  r.Header.Get(ConsumerHeader),
		Message:   msg,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
