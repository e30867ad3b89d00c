package pickup

import (
	"context"
	"sort"
	"sync"
	"time"

	"scrapyard/internal/types"
)

// memRepo is an in-memory Repository with the same compare-and-set semantics as Store.
type memRepo struct {
	mu     sync.Mutex
	rows   map[types.ID]*Pickup
	events []Event
	clock  time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[types.ID]*Pickup{}, clock: time.Now()}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func clonePickup(p *Pickup) *Pickup {
	cp := *p
	if p.AssignedTo != nil {
		v := *p.AssignedTo
		cp.AssignedTo = &v
	}
	return &cp
}

func (m *memRepo) Create(_ context.Context, p *Pickup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := clonePickup(p)
	cp.CreatedAt = m.tick()
	cp.UpdatedAt = cp.CreatedAt
	m.rows[p.ID] = cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Pickup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePickup(p), nil
}

func (m *memRepo) cas(id types.ID, status Status, version int) (*Pickup, bool) {
	p, ok := m.rows[id]
	if !ok || p.Status != status || p.StatusVersion != version {
		return nil, false
	}
	return p, true
}

func (m *memRepo) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, assignee *types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.cas(id, from, version)
	if !ok {
		return false, nil
	}
	p.Status = to
	p.StatusVersion++
	p.AssignedTo = nil
	if assignee != nil {
		v := *assignee
		p.AssignedTo = &v
	}
	p.UpdatedAt = m.tick()
	return true, nil
}

func (m *memRepo) SetContact(_ context.Context, id types.ID, version int, c ContactUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.cas(id, StatusPending, version)
	if !ok {
		return false, nil
	}
	p.ContactName, p.ContactPhone = c.Name, c.Phone
	p.OTPCode = c.Code
	exp := c.ExpiresAt
	p.OTPExpiresAt = &exp
	p.StatusVersion++
	p.UpdatedAt = m.tick()
	return true, nil
}

func (m *memRepo) ConfirmPhone(_ context.Context, id types.ID, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.cas(id, StatusPending, version)
	if !ok {
		return false, nil
	}
	p.Status = StatusConfirmed
	p.IsPhoneVerified = true
	p.OTPCode, p.OTPExpiresAt = "", nil
	p.StatusVersion++
	p.UpdatedAt = m.tick()
	return true, nil
}

func (m *memRepo) SetAgreedPrice(_ context.Context, id types.ID, price types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	p.AgreedPrice = &price
	return nil
}

func (m *memRepo) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memRepo) filter(keep func(*Pickup) bool, less func(a, b *Pickup) bool) []*Pickup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Pickup{}
	for _, p := range m.rows {
		if keep(p) {
			out = append(out, clonePickup(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestCreated(a, b *Pickup) bool { return a.CreatedAt.After(b.CreatedAt) }

func (m *memRepo) ListByClient(_ context.Context, clientID types.ID) ([]*Pickup, error) {
	return m.filter(func(p *Pickup) bool { return p.ClientID == clientID }, newestCreated), nil
}

func (m *memRepo) ListAvailable(_ context.Context) ([]*Pickup, error) {
	return m.filter(func(p *Pickup) bool { return p.InPool() }, newestCreated), nil
}

func (m *memRepo) ListByVendor(_ context.Context, vendorID types.ID) ([]*Pickup, error) {
	return m.filter(func(p *Pickup) bool { return p.IsAssignedTo(vendorID) },
		func(a, b *Pickup) bool { return a.UpdatedAt.After(b.UpdatedAt) }), nil
}

// checkInvariant reports rows that carry an assignee outside the allowed states.
func (m *memRepo) checkInvariant() []types.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bad []types.ID
	for id, p := range m.rows {
		if p.AssignedTo != nil && !assigneeAllowed(p.Status) {
			bad = append(bad, id)
		}
	}
	return bad
}
