package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestStoreInsertMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("INSERT INTO lead_messages").
		WithArgs(pgxmock.AnyArg(), "t1", "lead-1", "outbound", "ai", "text", "hello", "", "", "pending", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.InsertMessage(context.Background(), MessageRecord{
		TenantID:  "t1",
		LeadID:    "lead-1",
		Direction: DirectionOutbound,
		Source:    SourceAI,
		Body:      "hello",
		Status:    StatusPending,
	})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE lead_messages").
		WithArgs(id, "failed", "gateway: send-text: boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.UpdateStatus(context.Background(), id, StatusFailed, "gateway: send-text: boom"); err != nil {
		t.Fatalf("update status: %v", err)
	}
}

func TestStoreListByLead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "tenant_id", "lead_id", "direction", "source", "kind", "body", "media_url", "media_type", "status", "error", "created_at", "sent_at"}).
		AddRow(id, "t1", "lead-1", "inbound", "human", "text", "сколько стоит", "", "", "received", "", now, nil).
		AddRow(uuid.New(), "t1", "lead-1", "outbound", "ai", "text", "Ответим", "", "", "sent", "", now, &now)
	mock.ExpectQuery("FROM lead_messages").
		WithArgs("t1", "lead-1", 100).
		WillReturnRows(rows)

	got, err := store.ListByLead(context.Background(), "t1", "lead-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != id || got[0].Direction != DirectionInbound || got[1].Status != StatusSent {
		t.Fatalf("unexpected records: %#v", got)
	}
	if got[1].SentAt == nil {
		t.Fatalf("expected sent_at on outbound")
	}
}

func TestMemoryStoreListAndUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := store.InsertMessage(ctx, MessageRecord{TenantID: "t1", LeadID: "l1", Body: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	other, _ := store.InsertMessage(ctx, MessageRecord{TenantID: "t2", LeadID: "l1", Body: "x"})

	got, _ := store.ListByLead(ctx, "t1", "l1", 2)
	if len(got) != 2 || !got[1].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("expected two most recent records, got %#v", got)
	}

	if err := store.UpdateStatus(ctx, other, StatusSent, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateStatus(ctx, uuid.New(), StatusSent, ""); err == nil {
		t.Fatalf("expected error for unknown id")
	}
	all := store.All()
	if all[3].Status != StatusSent || all[3].SentAt == nil {
		t.Fatalf("expected sent status recorded: %#v", all[3])
	}
}
