// Package store holds the locally cached collection of manufacturing orders
package store

import (
	"strings"
	"sync"

	"github.com/mfg-ops/ordrefab/models"
)

// Filter narrows the visible list. Zero fields match everything.
type Filter struct {
	Statuses         []models.Status
	ProductionLineID uint
	Query            string // case-insensitive match on code, product or line name
}

func (f Filter) match(o models.ManufacturingOrder) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ProductionLineID != 0 && o.ProductionLineID != f.ProductionLineID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := []string{o.Code}
		if o.Product != nil {
			haystack = append(haystack, o.Product.Name)
		}
		if o.ProductionLine != nil {
			haystack = append(haystack, o.ProductionLine.Name)
		}
		for _, h := range haystack {
			if strings.Contains(strings.ToLower(h), q) {
				return true
			}
		}
		return false
	}
	return true
}

// Orders is an ordered, id-indexed collection safe for concurrent use
type Orders struct {
	mu     sync.RWMutex
	orders []models.ManufacturingOrder
	index  map[uint]int
}

// NewOrders returns an empty collection
func NewOrders() *Orders {
	return &Orders{index: make(map[uint]int)}
}

func (s *Orders) reindex() {
	s.index = make(map[uint]int, len(s.orders))
	for i, o := range s.orders {
		s.index[o.ID] = i
	}
}

// Replace swaps the whole collection, as after a full list fetch
func (s *Orders) Replace(orders []models.ManufacturingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append([]models.ManufacturingOrder(nil), orders...)
	s.reindex()
}

// Snapshot returns a copy of every order in collection order
func (s *Orders) Snapshot() []models.ManufacturingOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.ManufacturingOrder(nil), s.orders...)
}

// Len returns the number of cached orders
func (s *Orders) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Get returns the order with id
func (s *Orders) Get(id uint) (models.ManufacturingOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.ManufacturingOrder{}, false
	}
	return s.orders[i], true
}

// Append adds a newly created order, or merges it if the id is already known
func (s *Orders) Append(o models.ManufacturingOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[o.ID]; ok {
		s.orders[i] = merged(s.orders[i], o)
		return
	}
	s.index[o.ID] = len(s.orders)
	s.orders = append(s.orders, o)
}

// Merge writes a backend-confirmed order over the cached one in place.
// Returns false when the id is unknown or the incoming record is older than
// the cached one. Merging the same record twice is a no-op.
func (s *Orders) Merge(o models.ManufacturingOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[o.ID]
	if !ok {
		return false
	}
	current := s.orders[i]
	if !o.UpdatedAt.IsZero() && !current.UpdatedAt.IsZero() && o.UpdatedAt.Before(current.UpdatedAt) {
		return false
	}
	s.orders[i] = merged(current, o)
	return true
}

// merged keeps the owner and expanded relations of current when incoming
// omits them
func merged(current, incoming models.ManufacturingOrder) models.ManufacturingOrder {
	if !incoming.HasOwner() {
		incoming.OwnerID = current.OwnerID
		incoming.Owner = current.Owner
	}
	if incoming.Product == nil && incoming.ProductID == current.ProductID {
		incoming.Product = current.Product
	}
	if incoming.ProductionLine == nil && incoming.ProductionLineID == current.ProductionLineID {
		incoming.ProductionLine = current.ProductionLine
	}
	return incoming
}

// Remove drops the order with id
func (s *Orders) Remove(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.orders = append(s.orders[:i], s.orders[i+1:]...)
	s.reindex()
	return true
}

// Visible returns the orders matching f, in collection order
func (s *Orders) Visible(f Filter) []models.ManufacturingOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ManufacturingOrder
	for _, o := range s.orders {
		if f.match(o) {
			out = append(out, o)
		}
	}
	return out
}
