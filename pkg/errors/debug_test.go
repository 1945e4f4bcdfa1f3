package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestLogFieldsTypedChain(t *testing.T) {
	err := fmt.Errorf("reserve: %w", New(CodeConflict, "insufficient stock").With("reason", "stock_conflict"))

	fields := LogFields(err)
	if fields["error_code"] != "CONFLICT" || fields["reason"] != "stock_conflict" {
		t.Fatalf("missing typed fields: %#v", fields)
	}
	if chain, ok := fields["error_chain"].([]string); !ok || len(chain) != 2 {
		t.Fatalf("expected two-link chain, got %#v", fields["error_chain"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("no pg diagnostics expected: %#v", fields)
	}
}

func TestLogFieldsPostgresDiagnostics(t *testing.T) {
	pgx := &pgconn.PgError{Code: "23505", ConstraintName: "uq_timeline_client_request", TableName: "shipping_timeline_events"}
	fields := LogFields(Wrap(CodeDependency, pgx, "append timeline"))
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "uq_timeline_client_request" {
		t.Fatalf("pgx diagnostics missing: %#v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty diagnostics should be omitted: %#v", fields)
	}

	pqErr := &pq.Error{Code: "40001", Table: "orders"}
	diag, ok := PGDiagnosticsOf(fmt.Errorf("update: %w", pqErr))
	if !ok || diag.Code != "40001" || diag.Table != "orders" {
		t.Fatalf("lib/pq diagnostics missing: %#v", diag)
	}
}

func TestLogFieldsPlainError(t *testing.T) {
	fields := LogFields(stdErrors.New("boom"))
	if len(fields) != 1 || fields["error"] != "boom" {
		t.Fatalf("unexpected fields %#v", fields)
	}
	if len(LogFields(nil)) != 0 {
		t.Fatalf("nil error should produce no fields")
	}
}
