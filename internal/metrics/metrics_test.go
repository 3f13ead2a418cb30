package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPush(t *testing.T) {
	committed := testutil.ToFloat64(PushBatchesTotal.WithLabelValues("committed"))
	rolledBack := testutil.ToFloat64(PushBatchesTotal.WithLabelValues("rolled_back"))

	RecordPush(10*time.Millisecond, nil)
	RecordPush(10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, committed+1, testutil.ToFloat64(PushBatchesTotal.WithLabelValues("committed")))
	assert.Equal(t, rolledBack+1, testutil.ToFloat64(PushBatchesTotal.WithLabelValues("rolled_back")))
}

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("sale.created", "applied"))
	RecordOperation("sale.created", "applied")
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("sale.created", "applied")))
}

func TestRecordTerminalSync(t *testing.T) {
	before := testutil.ToFloat64(TerminalSyncTotal.WithLabelValues("push", "retry"))
	RecordTerminalSync("push", errors.New("offline"))
	assert.Equal(t, before+1, testutil.ToFloat64(TerminalSyncTotal.WithLabelValues("push", "retry")))
}
