package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/cartsplit-backend/internal/analytics/types"
)

// Inserter is the streaming surface of pkg/bigquery.Client.
type Inserter interface {
	Put(ctx context.Context, table string, rows []cbigquery.ValueSaver) error
}

// Backoff bounds the retry loop around a single insert.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

var defaultBackoff = Backoff{Attempts: 3, Initial: 250 * time.Millisecond, Max: 2 * time.Second}

type Config struct {
	FulfillmentTable string
	Backoff          Backoff
}

// BigQueryWriter streams one fulfillment row per event. The event id is the
// insert id, so a redelivered event is deduplicated by BigQuery.
type BigQueryWriter struct {
	inserter Inserter
	table    string
	backoff  Backoff
	sleep    func(context.Context, time.Duration) error
}

func New(inserter Inserter, cfg Config) (*BigQueryWriter, error) {
	if inserter == nil {
		return nil, errors.New("analytics writer: inserter is required")
	}
	table := strings.TrimSpace(cfg.FulfillmentTable)
	if table == "" {
		return nil, errors.New("analytics writer: fulfillment table is required")
	}
	b := cfg.Backoff
	if b.Attempts <= 0 {
		b.Attempts = defaultBackoff.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = defaultBackoff.Initial
	}
	if b.Max < b.Initial {
		b.Max = max(defaultBackoff.Max, b.Initial)
	}
	return &BigQueryWriter{inserter: inserter, table: table, backoff: b, sleep: sleepCtx}, nil
}

func (w *BigQueryWriter) InsertFulfillment(ctx context.Context, row types.FulfillmentEventRow) error {
	rows := []cbigquery.ValueSaver{&cbigquery.StructSaver{Struct: row, InsertID: row.EventID}}

	delay := w.backoff.Initial
	for attempt := 1; ; attempt++ {
		err := w.inserter.Put(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.backoff.Attempts || !Retryable(err) {
			return fmt.Errorf("insert into %s (attempt %d): %w", w.table, attempt, err)
		}
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, w.backoff.Max)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retryable reports whether every error inside err is transient. Row level
// errors are unwrapped first; a single permanent row error makes the whole
// insert permanent.
func Retryable(err error) bool {
	leaves := flatten(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !transient(leaf) {
			return false
		}
	}
	return true
}

func flatten(err error) []error {
	var (
		multi  cbigquery.MultiError
		putErr cbigquery.PutMultiError
		rowErr *cbigquery.RowInsertionError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &putErr):
		var out []error
		for i := range putErr {
			out = append(out, flatten(putErr[i].Errors)...)
		}
		return out
	case errors.As(err, &rowErr):
		return flatten(rowErr.Errors)
	case errors.As(err, &multi):
		var out []error
		for _, inner := range multi {
			out = append(out, flatten(inner)...)
		}
		return out
	}
	return []error{err}
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

// EncodeJSON renders v for a BigQuery JSON column. Nil and empty raw JSON
// become NULL.
func EncodeJSON(v any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := v.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("encode json column: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
