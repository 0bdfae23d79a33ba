package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ostraco/sendonce"
	"github.com/ostraco/sendonce/internal/adapters/handler"
	"github.com/ostraco/sendonce/internal/relay"
	"github.com/ostraco/sendonce/internal/worker"
	"github.com/ostraco/sendonce/receiver"
	"github.com/ostraco/sendonce/retry"
)

// fakeReceiver implements the receiver wire contract in-process. Mutations
// are recorded under their Idempotency-Key; the failure switches simulate an
// outage and a response lost after the receiver processed the request.
type fakeReceiver struct {
	mu              sync.Mutex
	received        map[string]json.RawMessage
	mutateCalls     int
	failMutations   bool
	dropResponses   bool
	rejectMutations bool
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{received: make(map[string]json.RawMessage)}
}

func (f *fakeReceiver) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /requests", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.mutateCalls++

		if f.failMutations {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if f.rejectMutations {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "invalid_payload",
				"message": "amount must be positive",
			})
			return
		}

		id := r.Header.Get("Idempotency-Key")
		body, _ := io.ReadAll(r.Body)
		f.received[id] = body

		if f.dropResponses {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"request_id":  id,
			"status":      "received",
			"received_at": time.Now(),
		})
	})

	mux.HandleFunc("GET /requests/{requestID}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		id := r.PathValue("requestID")
		if _, ok := f.received[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"request_id":  id,
			"status":      "received",
			"received_at": time.Now(),
		})
	})

	return mux
}

func (f *fakeReceiver) effectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *fakeReceiver) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutateCalls
}

func (f *fakeReceiver) set(field *bool, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*field = v
}

type relayStack struct {
	handler  *handler.RelayHandler
	jobs     *relay.MockJobStore
	markers  *sendonce.MemoryStore
	service  *relay.Service
	receiver *fakeReceiver
}

func setupRelay(t *testing.T) *relayStack {
	fake := newFakeReceiver()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	markers := sendonce.NewMemoryStore()
	client := receiver.NewClient(server.URL)
	protocol := sendonce.New[json.RawMessage, *receiver.Receipt](markers, client)

	jobs := relay.NewMockJobStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	service := relay.NewService(jobs, protocol, relay.NewRegistry(), policy, logger)

	return &relayStack{
		handler:  handler.NewRelayHandler(service, nil),
		jobs:     jobs,
		markers:  markers,
		service:  service,
		receiver: fake,
	}
}

func submit(h *handler.RelayHandler, key, payload string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/v1/relays", toJSON(handler.RelayRequest{
		Payload: json.RawMessage(payload),
	}))
	r.Header.Set("Idempotency-Key", key)
	h.HandleSubmit(w, r)
	return w
}

func submittedStatus(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp handler.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %T", resp.Data)
	}
	status, _ := data["status"].(string)
	return status
}

func TestRelay_FullFlow(t *testing.T) {
	stack := setupRelay(t)

	key := "req-" + uuid.New().String()

	w := submit(stack.handler, key, `{"amount":125,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit failed: %d %s", w.Code, w.Body.String())
	}
	if status := submittedStatus(t, w); status != string(relay.StatusDelivered) {
		t.Fatalf("expected DELIVERED, got %s", status)
	}

	if got := stack.receiver.effectCount(); got != 1 {
		t.Errorf("expected exactly one received request, got %d", got)
	}

	// Same key, same payload: answered from the job record without touching
	// the wire again.
	callsBefore := stack.receiver.calls()
	w = submit(stack.handler, key, `{"amount":125,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resubmit failed: %d %s", w.Code, w.Body.String())
	}
	if status := submittedStatus(t, w); status != string(relay.StatusDelivered) {
		t.Errorf("expected DELIVERED on resubmit, got %s", status)
	}
	if got := stack.receiver.calls(); got != callsBefore {
		t.Errorf("resubmission touched the wire: %d calls before, %d after", callsBefore, got)
	}

	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest("GET", "/api/v1/relays/"+key, nil)
	r2.SetPathValue("requestID", key)
	stack.handler.HandleStatus(w2, r2)
	if w2.Code != http.StatusOK {
		t.Errorf("status lookup failed: %d %s", w2.Code, w2.Body.String())
	}
}

func TestRelay_LostResponseResolvesToDuplicate(t *testing.T) {
	stack := setupRelay(t)
	stack.receiver.set(&stack.receiver.dropResponses, true)

	key := "req-" + uuid.New().String()

	// The receiver processes the request but the response never arrives.
	// The next attempt's existence check resolves the held marker to a
	// duplicate instead of mutating again.
	w := submit(stack.handler, key, `{"amount":125,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit failed: %d %s", w.Code, w.Body.String())
	}
	if status := submittedStatus(t, w); status != string(relay.StatusDuplicate) {
		t.Errorf("expected DUPLICATE, got %s", status)
	}

	if got := stack.receiver.effectCount(); got != 1 {
		t.Errorf("expected exactly one received request, got %d", got)
	}
}

func TestRelay_ReceiverOutageLeavesJobPending(t *testing.T) {
	stack := setupRelay(t)
	stack.receiver.set(&stack.receiver.failMutations, true)

	key := "req-" + uuid.New().String()

	w := submit(stack.handler, key, `{"amount":125,"currency":"USD"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 during outage, got %d %s", w.Code, w.Body.String())
	}
	if got := stack.receiver.effectCount(); got != 0 {
		t.Fatalf("expected no received requests during outage, got %d", got)
	}

	// Receiver comes back. The marker held by the inconclusive attempt is
	// withdrawn (operator action or TTL expiry) and the resender finishes
	// the job.
	stack.receiver.set(&stack.receiver.failMutations, false)
	if err := stack.markers.Unstore(context.Background(), key); err != nil {
		t.Fatalf("failed to unstore marker: %v", err)
	}

	job, err := stack.jobs.FindJobByRequestID(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to find job: %v", err)
	}
	past := time.Now().Add(-time.Second)
	job.NextRetryAt = &past
	if err := stack.jobs.UpdateJob(context.Background(), job); err != nil {
		t.Fatalf("failed to rewind retry time: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resender := worker.NewResender(stack.jobs, stack.service, time.Minute, 10, logger)
	if err := resender.ProcessDue(context.Background()); err != nil {
		t.Fatalf("resend cycle failed: %v", err)
	}

	job, err = stack.jobs.FindJobByRequestID(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to find job: %v", err)
	}
	if job.Status != relay.StatusDelivered {
		t.Errorf("expected DELIVERED after resend, got %s", job.Status)
	}
	if got := stack.receiver.effectCount(); got != 1 {
		t.Errorf("expected exactly one received request, got %d", got)
	}
}

func TestRelay_RejectionReleasesMarker(t *testing.T) {
	stack := setupRelay(t)
	stack.receiver.set(&stack.receiver.rejectMutations, true)

	key := "req-" + uuid.New().String()

	w := submit(stack.handler, key, `{"amount":-5,"currency":"USD"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for rejected payload, got %d %s", w.Code, w.Body.String())
	}

	// The definite rejection withdrew the marker, so once the receiver
	// accepts the payload the same identifier goes through cleanly.
	stack.receiver.set(&stack.receiver.rejectMutations, false)
	w = submit(stack.handler, key, `{"amount":-5,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after receiver recovery, got %d %s", w.Code, w.Body.String())
	}
	if status := submittedStatus(t, w); status != string(relay.StatusDelivered) {
		t.Errorf("expected DELIVERED, got %s", status)
	}

	if got := stack.receiver.effectCount(); got != 1 {
		t.Errorf("expected exactly one received request, got %d", got)
	}
}

func TestRelay_PayloadMismatchRejected(t *testing.T) {
	stack := setupRelay(t)

	key := "req-" + uuid.New().String()

	w := submit(stack.handler, key, `{"amount":125,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit failed: %d %s", w.Code, w.Body.String())
	}

	w = submit(stack.handler, key, `{"amount":999,"currency":"USD"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for reused key, got %d %s", w.Code, w.Body.String())
	}

	if got := stack.receiver.effectCount(); got != 1 {
		t.Errorf("expected exactly one received request, got %d", got)
	}
}

func TestRelay_ConcurrentSameKey(t *testing.T) {
	stack := setupRelay(t)

	key := "req-" + uuid.New().String()
	payload := `{"amount":5000,"currency":"USD"}`

	const numRequests = 8
	var wg sync.WaitGroup
	results := make(chan int, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := submit(stack.handler, key, payload)
			results <- w.Code
		}()
	}

	wg.Wait()
	close(results)

	var delivered int
	for code := range results {
		switch code {
		case http.StatusOK:
			delivered++
		case http.StatusConflict:
			// Lost the in-process race; the winner records the outcome.
		default:
			t.Errorf("unexpected concurrent request status: %d", code)
		}
	}

	if delivered == 0 {
		t.Error("expected at least one delivered submission")
	}
	if got := stack.receiver.effectCount(); got != 1 {
		t.Errorf("expected exactly one received request, got %d", got)
	}
}

func TestRelay_DistinctKeysDoNotInterfere(t *testing.T) {
	stack := setupRelay(t)

	key1 := "req-" + uuid.New().String()
	key2 := "req-" + uuid.New().String()

	w := submit(stack.handler, key1, `{"amount":100,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("first submit failed: %d", w.Code)
	}
	w = submit(stack.handler, key2, `{"amount":200,"currency":"USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("second submit failed: %d", w.Code)
	}

	if got := stack.receiver.effectCount(); got != 2 {
		t.Errorf("expected two received requests, got %d", got)
	}
}

func toJSON(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}
