package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBatchFinished(t *testing.T) {
	m := New()

	m.BatchFinished(&domain.ProcessingBatch{
		ID:     "b-1",
		Status: domain.BatchCompleted,
		Report: &domain.BatchReport{
			RowsRead:          10,
			RowsSkipped:       2,
			StandardCreated:   3,
			ReversalsCreated:  1,
			DuplicatesSkipped: 4,
		},
	}, 1500*time.Millisecond)
	m.BatchFinished(&domain.ProcessingBatch{ID: "b-2", Status: domain.BatchFailed}, time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"rows read", testutil.ToFloat64(m.RowsRead), 10},
		{"rows skipped", testutil.ToFloat64(m.RowsSkipped), 2},
		{"standard", testutil.ToFloat64(m.TransactionsCreated.WithLabelValues(string(domain.KindStandardPoints))), 3},
		{"reversal", testutil.ToFloat64(m.TransactionsCreated.WithLabelValues(string(domain.KindCreditReversal))), 1},
		{"duplicates", testutil.ToFloat64(m.DuplicatesSkipped), 4},
		{"completed", testutil.ToFloat64(m.Batches.WithLabelValues(string(domain.BatchCompleted))), 1},
		{"failed", testutil.ToFloat64(m.Batches.WithLabelValues(string(domain.BatchFailed))), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}

	if n := testutil.CollectAndCount(m.BatchDuration); n != 1 {
		t.Errorf("expected 1 duration series, got %d", n)
	}
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/batches/{id}", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/batches/{id}", "200")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected unmatched route label, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.BatchFinished(&domain.ProcessingBatch{ID: "b-1", Status: domain.BatchCompleted, Report: &domain.BatchReport{RowsRead: 3}}, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"bonusledger_rows_read_total 3",
		`bonusledger_batches_total{status="COMPLETED"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Registering twice on one registry would panic.
	a, b := New(), New()
	a.RowsRead.Add(1)
	if got := testutil.ToFloat64(b.RowsRead); got != 0 {
		t.Errorf("expected registries to be independent, got %v", got)
	}
}
