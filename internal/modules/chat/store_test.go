package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"scrapyard/internal/access"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/testdb"
	"scrapyard/internal/types"
)

func TestStoreOfferFlow(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedAccount(t, db, string(owner.ID), "owner@example.com", true, false)
	testdb.SeedAccount(t, db, string(assignee.ID), "vendor@example.com", false, true)
	ctx := context.Background()

	pickups := pickup.NewService(pickup.NewStore(db), pickup.Deps{}, nil)
	p, err := pickups.Create(ctx, owner, pickup.CreateCommand{
		Address:  "1 Market St",
		Date:     time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
		TimeSlot: "morning",
		Category: "paper",
	})
	if err != nil {
		t.Fatalf("create pickup: %v", err)
	}

	store := NewStore(db)
	svc := NewService(store, pickups, nil)

	if _, err := svc.Post(ctx, owner, PostCommand{PickupID: p.ID, Body: "hello"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	var fe types.FieldErrors
	if _, err := svc.Post(ctx, owner, PostCommand{PickupID: p.ID, Offer: &types.Money{Amount: 200}}); !errors.As(err, &fe) {
		t.Fatalf("offer without assigned vendor err = %v", err)
	}

	recipient := owner.ID
	offer := &Message{
		ID:          types.NewID(),
		PickupID:    p.ID,
		SenderID:    assignee.ID,
		IsOffer:     true,
		OfferAmount: &types.Money{Amount: 200, Currency: types.DefaultCurrency},
		OfferStatus: OfferPending,
		RecipientID: &recipient,
		CreatedAt:   time.Now(),
	}
	if err := store.Append(ctx, offer); err != nil {
		t.Fatalf("append offer: %v", err)
	}
	stored, err := store.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if stored.RecipientID == nil || *stored.RecipientID != owner.ID {
		t.Fatalf("stored recipient = %v", stored.RecipientID)
	}

	ok, err := store.Resolve(ctx, offer.ID, OfferRejected, time.Now())
	if err != nil || !ok {
		t.Fatalf("resolve = %v, %v", ok, err)
	}
	ok, err = store.Resolve(ctx, offer.ID, OfferAccepted, time.Now())
	if err != nil || ok {
		t.Fatalf("second resolve = %v, %v", ok, err)
	}

	msgs, err := store.Thread(ctx, p.ID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("thread = %+v", msgs)
	}
	for _, m := range msgs {
		if m.ID == offer.ID && (m.OfferStatus != OfferRejected || m.OfferAmount.Amount != 200) {
			t.Fatalf("stored offer = %+v", m)
		}
	}
	if _, err := svc.Thread(ctx, assignee, p.ID); !errors.Is(err, access.ErrAccessDenied) {
		t.Fatalf("unassigned vendor read err = %v", err)
	}
}
