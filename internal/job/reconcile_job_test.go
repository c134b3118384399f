package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type mockReconciler struct {
	evicted int
	calls   int
}

func (m *mockReconciler) Reconcile(ctx context.Context) int {
	m.calls++
	return m.evicted
}

func TestReconcileJob_Run(t *testing.T) {
	tests := []struct {
		name    string
		evicted int
	}{
		{name: "evictions found", evicted: 3},
		{name: "nothing stale", evicted: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockReconciler{evicted: tt.evicted}
			job := NewReconcileJob(m, zap.NewNop())

			job.Run()
			assert.Equal(t, 1, m.calls)
		})
	}
}
