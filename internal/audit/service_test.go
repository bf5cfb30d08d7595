package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestService_AppendRequiresTenantAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeConnectionConfigured}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent without tenant, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{TenantID: "t1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent without type, got %v", err)
	}
}

func TestService_ConnectionEventsOmitAPIKey(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	actor := Actor{UserID: "u1", IP: "1.2.3.4"}

	if err := svc.LogConnectionConfigured(context.Background(), "t1", "c1", actor, "0122334455", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogConnectionDeactivated(context.Background(), "t1", actor); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned")
	}
	if evs[0].IPAddress != "1.2.3.4" || evs[0].ConnectionID != "c1" {
		t.Fatalf("expected actor and target captured, got %+v", evs[0])
	}
	if !strings.Contains(evs[0].Metadata, `"reception_number":"0122334455"`) || strings.Contains(evs[0].Metadata, "key") {
		t.Fatalf("unexpected metadata %s", evs[0].Metadata)
	}
	if evs[1].Type != EventTypeConnectionDeactivated {
		t.Fatalf("expected deactivation event")
	}
}

func TestService_ListNewestFirstPerTenant(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_ = svc.LogCallAnnotated(ctx, "t1", "call-1", Actor{UserID: "u"}, []string{"rappel"})
	_ = svc.LogCallAnnotated(ctx, "t2", "call-2", Actor{UserID: "u"}, nil)
	_ = svc.LogCallAnnotated(ctx, "t1", "call-3", Actor{UserID: "u"}, nil)

	evs, err := svc.List(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 || evs[0].CallID != "call-3" || evs[1].CallID != "call-1" {
		t.Fatalf("unexpected events %+v", evs)
	}
	if evs[1].Metadata != `{"tags":["rappel"]}` {
		t.Fatalf("unexpected metadata %s", evs[1].Metadata)
	}
}

func TestPostgresRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	defer mock.Close()

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs("e1", "t1", "connection_deactivated", "u1", "", "", "", "gone", "{}", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPostgresRepo(mock)
	err = repo.Append(context.Background(), Event{
		ID: "e1", TenantID: "t1", Type: EventTypeConnectionDeactivated,
		ActorUserID: "u1", Message: "gone", CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
