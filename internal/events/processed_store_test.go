package events

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("twilio", "SM1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "twilio", "SM1")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("twilio", "SM2").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "twilio", "SM2")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("twilio", "SM3").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "twilio", "SM3")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryProcessedStoreForgetsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProcessedStore(2)

	for _, id := range []string{"SM1", "SM2"} {
		if ok, _ := store.MarkProcessed(ctx, "twilio", id); !ok {
			t.Fatalf("expected %s to be newly marked", id)
		}
	}
	if ok, _ := store.MarkProcessed(ctx, "twilio", "SM1"); ok {
		t.Fatalf("expected duplicate mark to report false")
	}
	if seen, _ := store.AlreadyProcessed(ctx, "sendgrid", "SM1"); seen {
		t.Fatalf("expected providers to be isolated")
	}

	_, _ = store.MarkProcessed(ctx, "twilio", "SM3")
	if seen, _ := store.AlreadyProcessed(ctx, "twilio", "SM1"); seen {
		t.Fatalf("expected oldest id to be evicted")
	}
	if seen, _ := store.AlreadyProcessed(ctx, "twilio", "SM3"); !seen {
		t.Fatalf("expected newest id to be retained")
	}
}
