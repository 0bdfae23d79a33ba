package metrics

import (
	"testing"
	"time"
)

// Lightweight sanity checks that the helpers can be called without
// panicking; collector registration happens at package init.

func TestRecordSend(t *testing.T) {
	RecordSend("delivered", 150*time.Millisecond)
	RecordSend("pending", 2*time.Second)
	RecordSend("failed", 10*time.Millisecond)
}

func TestJobGauges(t *testing.T) {
	SetPendingJobs(5)
	SetPendingJobs(0)
	RecordJobsPurged(12)
	RecordMarkerConflict()
}

func TestHandler(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler returned nil")
	}
}
