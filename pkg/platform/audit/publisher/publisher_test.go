package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/audit"
	"verifyd/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	certID := id.NewCertificateID()
	event := audit.Event{
		CertificateID: certID,
		Action:        string(audit.EventCertificateIssued),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), certID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCertificateIssued), events[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	certID := id.NewCertificateID()

	for range 10 {
		event := audit.Event{
			CertificateID: certID,
			Action:        string(audit.EventSubmissionReceived),
		}
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	// Close should drain all buffered events
	pub.Close()

	events, err := store.ListByCertificate(context.Background(), certID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	// Fill the buffer with concurrent writes; drops must not panic or block.
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				Action: string(audit.EventSubmissionReceived),
			})
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	certID := id.NewCertificateID()
	err := pub.Emit(context.Background(), audit.Event{
		CertificateID: certID,
		Action:        string(audit.EventCertificateIssued),
		// Timestamp not set
	})
	require.NoError(t, err)

	events, err := store.ListByCertificate(context.Background(), certID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.WithinDuration(t, time.Now(), events[0].Timestamp, time.Minute)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Deliver(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func TestPublisher_FansOutToSinks(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &recordingSink{}
	pub := NewPublisher(store, WithSink(sink))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action: string(audit.EventCertificateApproved),
	})
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, string(audit.EventCertificateApproved), sink.events[0].Action)
}
