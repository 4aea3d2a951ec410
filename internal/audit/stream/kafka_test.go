package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"parity/internal/audit/models"
	id "parity/pkg/domain"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func sampleEntry() models.Entry {
	return models.Entry{
		ID:         id.EntryID(uuid.New()),
		CompanyID:  id.CompanyID(uuid.New()),
		Sequence:   7,
		Action:     models.ActionExport,
		EntityType: "audit_log",
		CreatedAt:  time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		RecordHash: "deadbeef",
	}
}

func TestNewPublisher(t *testing.T) {
	_, err := NewPublisher(nil, "audit")
	require.Error(t, err)
	_, err = NewPublisher(&fakeProducer{}, "")
	require.Error(t, err)
}

func TestPublish_KeysByCompany(t *testing.T) {
	producer := &fakeProducer{}
	p, err := NewPublisher(producer, "audit-entries")
	require.NoError(t, err)
	entry := sampleEntry()

	require.NoError(t, p.Publish(context.Background(), entry))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "audit-entries", rec.Topic)
	assert.Equal(t, entry.CompanyID.String(), string(rec.Key))

	var msg Message
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, entry.ID, msg.Entry.ID)
	assert.Equal(t, entry.RecordHash, msg.Entry.RecordHash)
	assert.Equal(t, int64(7), msg.Entry.Sequence)
}

func TestPublish_SurfacesBrokerErrors(t *testing.T) {
	p, err := NewPublisher(&fakeProducer{err: errors.New("not leader")}, "audit-entries")
	require.NoError(t, err)

	err = p.Publish(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not leader")
}
