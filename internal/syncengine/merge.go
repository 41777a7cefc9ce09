package syncengine

import "github.com/dvloznov/expense-sync/internal/domain"

// MergeRemoteWins returns the union of local and remote by id. For an id in
// both lists the remote record is kept. The result is ordered newest first.
func MergeRemoteWins(local, remote []domain.Transaction) []domain.Transaction {
	m := newIDMap(len(local) + len(remote))
	for _, tx := range local {
		m.put(tx)
	}
	for _, tx := range remote {
		m.put(tx)
	}
	return m.sorted()
}

// MergeOwnWins returns own plus every partner record whose id is not already
// present. The result is ordered newest first.
func MergeOwnWins(own, partner []domain.Transaction) []domain.Transaction {
	m := newIDMap(len(own) + len(partner))
	for _, tx := range own {
		m.put(tx)
	}
	for _, tx := range partner {
		m.putIfAbsent(tx)
	}
	return m.sorted()
}

// idMap is an insertion-ordered map of transactions keyed by id, so that the
// stable sort gives the same result for the same inputs.
type idMap struct {
	order []string
	byID  map[string]domain.Transaction
}

func newIDMap(size int) *idMap {
	return &idMap{
		order: make([]string, 0, size),
		byID:  make(map[string]domain.Transaction, size),
	}
}

func (m *idMap) put(tx domain.Transaction) {
	if _, ok := m.byID[tx.ID]; !ok {
		m.order = append(m.order, tx.ID)
	}
	m.byID[tx.ID] = tx
}

func (m *idMap) putIfAbsent(tx domain.Transaction) {
	if _, ok := m.byID[tx.ID]; ok {
		return
	}
	m.put(tx)
}

func (m *idMap) sorted() []domain.Transaction {
	out := make([]domain.Transaction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	domain.SortNewestFirst(out)
	return out
}
