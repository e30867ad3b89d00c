package http_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/chat"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/types"
)

type accountRepo struct {
	mu      sync.Mutex
	byEmail map[string]*account.Account
}

func newAccountRepo() *accountRepo {
	return &accountRepo{byEmail: map[string]*account.Account{}}
}

func (m *accountRepo) Upsert(_ context.Context, email string, fn func(*account.Account) (*account.Account, error)) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing *account.Account
	if a, ok := m.byEmail[email]; ok {
		cp := *a
		existing = &cp
	}
	next, err := fn(existing)
	if err != nil {
		return nil, err
	}
	cp := *next
	m.byEmail[email] = &cp
	return next, nil
}

func (m *accountRepo) find(id types.ID) *account.Account {
	for _, a := range m.byEmail {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *accountRepo) Get(_ context.Context, id types.ID) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *accountRepo) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *accountRepo) MarkVerified(_ context.Context, id types.ID, ch otp.Channel) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return nil, account.ErrNotFound
	}
	if ch == otp.ChannelSMS {
		a.IsPhoneVerified = true
	} else {
		a.IsEmailVerified = true
	}
	a.IsVerified = true
	cp := *a
	return &cp, nil
}

// pickupRepo keeps the compare-and-set contract of pickup.Store.
type pickupRepo struct {
	mu    sync.Mutex
	rows  map[types.ID]*pickup.Pickup
	clock time.Time
}

func newPickupRepo() *pickupRepo {
	return &pickupRepo{rows: map[types.ID]*pickup.Pickup{}, clock: time.Now()}
}

func (m *pickupRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *pickupRepo) Create(_ context.Context, p *pickup.Pickup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.CreatedAt = m.tick()
	cp.UpdatedAt = cp.CreatedAt
	m.rows[p.ID] = &cp
	return nil
}

func (m *pickupRepo) Get(_ context.Context, id types.ID) (*pickup.Pickup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, pickup.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *pickupRepo) cas(id types.ID, status pickup.Status, version int) *pickup.Pickup {
	p, ok := m.rows[id]
	if !ok || p.Status != status || p.StatusVersion != version {
		return nil
	}
	return p
}

func (m *pickupRepo) UpdateStatus(_ context.Context, id types.ID, from, to pickup.Status, version int, assignee *types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.cas(id, from, version)
	if p == nil {
		return false, nil
	}
	p.Status = to
	p.StatusVersion++
	p.AssignedTo = nil
	if assignee != nil {
		p.AssignedTo = assignee.Ptr()
	}
	p.UpdatedAt = m.tick()
	return true, nil
}

func (m *pickupRepo) SetContact(_ context.Context, id types.ID, version int, c pickup.ContactUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.cas(id, pickup.StatusPending, version)
	if p == nil {
		return false, nil
	}
	exp := c.ExpiresAt
	p.ContactName, p.ContactPhone, p.OTPCode, p.OTPExpiresAt = c.Name, c.Phone, c.Code, &exp
	p.StatusVersion++
	return true, nil
}

func (m *pickupRepo) ConfirmPhone(_ context.Context, id types.ID, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.cas(id, pickup.StatusPending, version)
	if p == nil {
		return false, nil
	}
	p.Status = pickup.StatusConfirmed
	p.IsPhoneVerified = true
	p.OTPCode, p.OTPExpiresAt = "", nil
	p.StatusVersion++
	return true, nil
}

func (m *pickupRepo) SetAgreedPrice(_ context.Context, id types.ID, price types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return pickup.ErrNotFound
	}
	p.AgreedPrice = &price
	return nil
}

func (m *pickupRepo) AppendEvent(context.Context, *pickup.Event) error { return nil }

func (m *pickupRepo) list(keep func(*pickup.Pickup) bool) []*pickup.Pickup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*pickup.Pickup{}
	for _, p := range m.rows {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *pickupRepo) ListByClient(_ context.Context, clientID types.ID) ([]*pickup.Pickup, error) {
	return m.list(func(p *pickup.Pickup) bool { return p.ClientID == clientID }), nil
}

func (m *pickupRepo) ListAvailable(context.Context) ([]*pickup.Pickup, error) {
	return m.list(func(p *pickup.Pickup) bool { return p.InPool() }), nil
}

func (m *pickupRepo) ListByVendor(_ context.Context, vendorID types.ID) ([]*pickup.Pickup, error) {
	return m.list(func(p *pickup.Pickup) bool { return p.IsAssignedTo(vendorID) }), nil
}

type chatRepo struct {
	mu   sync.Mutex
	msgs []*chat.Message
}

func (m *chatRepo) Append(_ context.Context, msg *chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.msgs = append(m.msgs, &cp)
	return nil
}

func (m *chatRepo) Get(_ context.Context, id types.ID) (*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, chat.ErrNotFound
}

func (m *chatRepo) Thread(_ context.Context, pickupID types.ID) ([]*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chat.Message
	for _, msg := range m.msgs {
		if msg.PickupID == pickupID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *chatRepo) MarkRead(_ context.Context, pickupID, reader types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.PickupID == pickupID && msg.SenderID != reader {
			msg.IsRead = true
		}
	}
	return nil
}

func (m *chatRepo) Resolve(_ context.Context, id types.ID, status chat.OfferStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ID == id && msg.OfferStatus == chat.OfferPending {
			msg.OfferStatus = status
			msg.ResolvedAt = &at
			return true, nil
		}
	}
	return false, nil
}

// codeBox records the last code sent to each contact.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *codeBox) SendCode(_ context.Context, contact string, _ otp.Channel, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[contact] = code
	return nil
}

func (b *codeBox) last(contact string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[contact]
}

type memBlob struct {
	mu   sync.Mutex
	keys []string
}

func (b *memBlob) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return "mem://" + key, nil
}
