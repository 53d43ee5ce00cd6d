package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrStale is returned by Fetch when a newer fetch was issued before this one completed.
var ErrStale = errors.New("catalog: superseded by a newer fetch")

// Source runs a catalog query. *Repo satisfies it on the server, posclient.Client in the POS.
type Source interface {
	Search(ctx context.Context, q Query) ([]Product, int, error)
}

type Page struct {
	Items      []Product `json:"items"`
	TotalCount int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// State is a read-only copy of the manager's view.
type State struct {
	Items      []Product
	TotalCount int
	Page       int
	Term       string
	Loading    bool
	Err        error
}

// Manager keeps the current page of a catalog listing. Only the result of the
// most recently issued Fetch is ever applied.
type Manager struct {
	src  Source
	size int

	token atomic.Uint64

	mu    sync.Mutex
	state State
}

func NewManager(src Source, pageSize int) *Manager {
	if pageSize <= 0 {
		pageSize = 12
	}
	return &Manager{src: src, size: pageSize, state: State{Page: 1}}
}

func (m *Manager) PageSize() int { return m.size }

// Fetch loads page (1-indexed) for term. On failure the items are dropped and
// the total resets to zero; the caller decides whether to try again.
func (m *Manager) Fetch(ctx context.Context, page int, term string) (Page, error) {
	if page < 1 {
		page = 1
	}
	term = strings.TrimSpace(term)
	tok := m.token.Add(1)

	m.mu.Lock()
	m.state.Page = page
	m.state.Term = term
	m.state.Loading = true
	m.mu.Unlock()

	items, total, err := m.src.Search(ctx, PageQuery(page, m.size, term))

	m.mu.Lock()
	defer m.mu.Unlock()
	if tok != m.token.Load() {
		return Page{}, ErrStale
	}
	m.state.Loading = false
	if err != nil {
		m.state.Items = nil
		m.state.TotalCount = 0
		m.state.Err = err
		return Page{}, fmt.Errorf("fetch products: %w", err)
	}
	if items == nil {
		items = []Product{}
	}
	m.state.Items = items
	m.state.TotalCount = total
	m.state.Err = nil
	return Page{Items: items, TotalCount: total, Page: page, PageSize: m.size}, nil
}

// Refresh re-runs the last fetch.
func (m *Manager) Refresh(ctx context.Context) (Page, error) {
	s := m.Snapshot()
	return m.Fetch(ctx, s.Page, s.Term)
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Items = append([]Product(nil), m.state.Items...)
	return s
}

// TotalPages rounds up; an empty result still has page 1.
func (m *Manager) TotalPages() int {
	m.mu.Lock()
	total := m.state.TotalCount
	m.mu.Unlock()
	if total == 0 {
		return 1
	}
	return (total + m.size - 1) / m.size
}

// Lookup finds a product on the current page.
func (m *Manager) Lookup(id int64) (Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.state.Items {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
