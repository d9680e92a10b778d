package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }
func (c *fakeClaim) Partition() int32                         { return 0 }

type fakeBatchStore struct {
	batches [][]*models.AuditRecord
	err     error
}

func (f *fakeBatchStore) CreateBatch(_ context.Context, recs []*models.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]*models.AuditRecord(nil), recs...))
	return nil
}

func auditMessage(t *testing.T, offset int64) *sarama.ConsumerMessage {
	t.Helper()
	tx, result := testResult()
	payload, err := json.Marshal(NewRecord(tx, result))
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "upi-prediction-audit", Offset: offset, Value: payload}
}

func runClaim(a *Archiver, msgs ...*sarama.ConsumerMessage) (*fakeSession, error) {
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, len(msgs))}
	for _, m := range msgs {
		claim.messages <- m
	}
	close(claim.messages)
	return session, a.ConsumeClaim(session, claim)
}

func TestArchiver_FlushesInBatches(t *testing.T) {
	store := &fakeBatchStore{}
	a := NewArchiver(store, 2, time.Hour)

	session, err := runClaim(a, auditMessage(t, 1), auditMessage(t, 2), auditMessage(t, 3))
	require.NoError(t, err)

	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 1)
	assert.Equal(t, []int64{2, 3}, session.marked)
	assert.Equal(t, int64(3), a.Archived())
}

func TestArchiver_SkipsUndecodableMessages(t *testing.T) {
	store := &fakeBatchStore{}
	a := NewArchiver(store, 10, time.Hour)

	bad := &sarama.ConsumerMessage{Offset: 2, Value: []byte("{oops")}
	session, err := runClaim(a, auditMessage(t, 1), bad)
	require.NoError(t, err)

	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 1)
	assert.Equal(t, []int64{2}, session.marked)
	assert.Equal(t, int64(1), a.Skipped())
}

func TestArchiver_StoreFailureLeavesOffsetsUnmarked(t *testing.T) {
	store := &fakeBatchStore{err: errors.New("connection refused")}
	a := NewArchiver(store, 1, time.Hour)

	session, err := runClaim(a, auditMessage(t, 1))
	require.Error(t, err)
	assert.Empty(t, session.marked)
	assert.Zero(t, a.Archived())
}

func TestArchiver_StopsWhenSessionEnds(t *testing.T) {
	a := NewArchiver(&fakeBatchStore{}, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}
	assert.NoError(t, a.ConsumeClaim(session, claim))
}
