package recorder

//go:generate mockgen -source=recorder.go -destination=mocks/mocks.go -package=mocks Store,Publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"parity/internal/audit/chain"
	"parity/internal/audit/models"
	"parity/internal/audit/recorder/mocks"
	"parity/internal/audit/store/memory"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/sentinel"
	"parity/pkg/platform/tx"
)

type RecorderSuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.Store
	recorder  *Recorder
	companyID id.CompanyID
	actor     models.Actor
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.companyID = id.CompanyID(uuid.New())
	s.actor = models.Actor{UserID: id.UserID(uuid.New()), Email: "hr@acme.test", Role: "hr_manager"}
	var err error
	s.recorder, err = New(s.store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
}

func (s *RecorderSuite) draft(entityID string) models.Draft {
	return models.Draft{
		CompanyID:  s.companyID,
		Actor:      s.actor,
		Action:     models.ActionUpdate,
		EntityType: "employee",
		EntityID:   entityID,
		EntityName: "Ada Lovelace",
		OldValues:  json.RawMessage(`{"salary": 58000}`),
		NewValues:  json.RawMessage(`{"salary": 61000}`),
	}
}

func (s *RecorderSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "audit store is required")
	})
}

func (s *RecorderSuite) TestAppend_BuildsChainFromGenesis() {
	first, err := s.recorder.Append(s.ctx, s.draft("e-1"), "k-1")
	s.Require().NoError(err)
	second, err := s.recorder.Append(s.ctx, s.draft("e-2"), "k-2")
	s.Require().NoError(err)

	s.Equal(int64(1), first.Sequence)
	s.Equal(chain.GenesisHash, first.PrevHash)
	s.Equal(int64(2), second.Sequence)
	s.Equal(first.RecordHash, second.PrevHash)
	s.Len(first.RecordHash, 64)

	entries, err := s.store.ListByCompany(s.ctx, s.companyID)
	s.Require().NoError(err)
	s.True(chain.Verify(s.companyID, entries).Valid)
}

func (s *RecorderSuite) TestAppend_StoresSnapshotsVerbatim() {
	d := s.draft("e-1")
	d.OldValues = json.RawMessage(`{"salary": 58000.00, "ssn": "123-45-6789"}`)

	entry, err := s.recorder.Append(s.ctx, d, "k-1")
	s.Require().NoError(err)

	stored, err := s.store.FindByIdempotencyKey(s.ctx, s.companyID, "k-1")
	s.Require().NoError(err)
	s.Equal(string(d.OldValues), string(stored.OldValues))
	s.Equal(string(d.OldValues), string(entry.OldValues))
}

func (s *RecorderSuite) TestAppend_AtMostOncePerIdempotencyKey() {
	for _, cacheSize := range []int{0, 16} {
		s.Run(fmt.Sprintf("cache size %d", cacheSize), func() {
			store := memory.New()
			rec, err := New(store, WithIdempotencyCache(cacheSize, time.Minute))
			s.Require().NoError(err)

			first, err := rec.Append(s.ctx, s.draft("e-1"), "same-key")
			s.Require().NoError(err)
			again, err := rec.Append(s.ctx, s.draft("e-1"), "same-key")
			s.Require().NoError(err)

			s.Equal(first.ID, again.ID)
			s.Equal(first.RecordHash, again.RecordHash)
			entries, err := store.ListByCompany(s.ctx, s.companyID)
			s.Require().NoError(err)
			s.Len(entries, 1)
		})
	}
}

func (s *RecorderSuite) TestAppend_ConcurrentRetriesWithSameKeyStoreOnce() {
	const attempts = 20
	var wg sync.WaitGroup
	ids := make([]id.EntryID, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := s.recorder.Append(s.ctx, s.draft("e-1"), "retry-key")
			if err == nil {
				ids[i] = entry.ID
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.store.ListByCompany(s.ctx, s.companyID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	for _, got := range ids {
		s.Equal(entries[0].ID, got)
	}
}

func (s *RecorderSuite) TestAppend_KeyReusedForDifferentActionConflicts() {
	_, err := s.recorder.Append(s.ctx, s.draft("e-1"), "k-1")
	s.Require().NoError(err)

	_, err = s.recorder.Append(s.ctx, s.draft("e-2"), "k-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *RecorderSuite) TestAppend_ConcurrentAppendsStaySerialized() {
	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.recorder.Append(s.ctx, s.draft(fmt.Sprintf("e-%d", i)), fmt.Sprintf("k-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	entries, err := s.store.ListByCompany(s.ctx, s.companyID)
	s.Require().NoError(err)
	s.Len(entries, writers)
	report := chain.Verify(s.companyID, entries)
	s.True(report.Valid, "broken: %v", report.BrokenSequences())
}

func (s *RecorderSuite) TestAppend_CompaniesHaveIndependentChains() {
	other := id.CompanyID(uuid.New())
	_, err := s.recorder.Append(s.ctx, s.draft("e-1"), "k-1")
	s.Require().NoError(err)

	d := s.draft("e-1")
	d.CompanyID = other
	entry, err := s.recorder.Append(s.ctx, d, "k-1")
	s.Require().NoError(err)

	s.Equal(int64(1), entry.Sequence)
	s.Equal(chain.GenesisHash, entry.PrevHash)
}

func (s *RecorderSuite) TestAppend_Validation() {
	cases := map[string]struct {
		mutate func(d *models.Draft)
		key    string
	}{
		"missing key":      {mutate: func(*models.Draft) {}, key: "  "},
		"missing company":  {mutate: func(d *models.Draft) { d.CompanyID = id.CompanyID{} }, key: "k"},
		"missing actor":    {mutate: func(d *models.Draft) { d.Actor.UserID = id.UserID{} }, key: "k"},
		"unknown action":   {mutate: func(d *models.Draft) { d.Action = "approve" }, key: "k"},
		"missing entity":   {mutate: func(d *models.Draft) { d.EntityType = "" }, key: "k"},
		"invalid snapshot": {mutate: func(d *models.Draft) { d.NewValues = json.RawMessage(`{`) }, key: "k"},
		"oversized key":    {mutate: func(*models.Draft) {}, key: string(make([]byte, 300))},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			d := s.draft("e-1")
			tc.mutate(&d)
			_, err := s.recorder.Append(s.ctx, d, tc.key)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), err.Error())
		})
	}
}

func (s *RecorderSuite) TestAppend_TimestampsFitStoragePrecision() {
	fixed := time.Date(2026, 5, 4, 10, 11, 12, 123456789, time.FixedZone("X", 7200))
	rec, err := New(s.store, WithClock(func() time.Time { return fixed }))
	s.Require().NoError(err)

	entry, err := rec.Append(s.ctx, s.draft("e-1"), "k-1")
	s.Require().NoError(err)
	s.Equal(time.UTC, entry.CreatedAt.Location())
	s.Equal(123456000, entry.CreatedAt.Nanosecond())
}

func (s *RecorderSuite) TestAppend_StoreInteractions() {
	s.Run("lost head race is a retryable concurrency error", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		rec, err := New(store, WithIdempotencyCache(0, 0))
		s.Require().NoError(err)

		store.EXPECT().FindByIdempotencyKey(gomock.Any(), s.companyID, "k-1").Return(nil, sentinel.ErrNotFound).Times(2)
		store.EXPECT().Head(gomock.Any(), s.companyID).Return(models.Head{Sequence: 3, Hash: "abc"}, nil)
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e *models.Entry) error {
			s.Equal(int64(4), e.Sequence)
			s.Equal("abc", e.PrevHash)
			return sentinel.ErrConflict
		})

		_, err = rec.Append(s.ctx, s.draft("e-1"), "k-1")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConcurrency))
		s.True(dErrors.Retryable(err))
	})

	s.Run("key committed by another process is replayed", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		rec, err := New(store, WithIdempotencyCache(0, 0))
		s.Require().NoError(err)

		winner := models.Entry{
			ID: id.EntryID(uuid.New()), CompanyID: s.companyID, Sequence: 1, Actor: s.actor,
			Action: models.ActionUpdate, EntityType: "employee", EntityID: "e-1", IdempotencyKey: "k-1",
		}
		gomock.InOrder(
			store.EXPECT().FindByIdempotencyKey(gomock.Any(), s.companyID, "k-1").Return(nil, sentinel.ErrNotFound),
			store.EXPECT().Head(gomock.Any(), s.companyID).Return(models.Head{}, nil),
			store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
			store.EXPECT().FindByIdempotencyKey(gomock.Any(), s.companyID, "k-1").Return(&winner, nil),
		)

		entry, err := rec.Append(s.ctx, s.draft("e-1"), "k-1")
		s.Require().NoError(err)
		s.Equal(winner.ID, entry.ID)
	})

	s.Run("entries written inside a transaction are not cached", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		rec, err := New(store, WithIdempotencyCache(16, time.Minute))
		s.Require().NoError(err)

		// The first insert is rolled back with its transaction, so the retry
		// must go back to the store.
		store.EXPECT().FindByIdempotencyKey(gomock.Any(), s.companyID, "k-1").Return(nil, sentinel.ErrNotFound).Times(2)
		store.EXPECT().Head(gomock.Any(), s.companyID).Return(models.Head{}, nil).Times(2)
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil).Times(2)

		_, err = rec.Append(tx.WithTx(s.ctx, &sql.Tx{}), s.draft("e-1"), "k-1")
		s.Require().NoError(err)
		first, err := rec.Append(s.ctx, s.draft("e-1"), "k-1")
		s.Require().NoError(err)

		replayed, err := rec.Append(s.ctx, s.draft("e-1"), "k-1")
		s.Require().NoError(err)
		s.Equal(first.ID, replayed.ID, "committed entries are served from the cache")
	})

	s.Run("store failure is internal", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		rec, err := New(store)
		s.Require().NoError(err)

		store.EXPECT().FindByIdempotencyKey(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err = rec.Append(s.ctx, s.draft("e-1"), "k-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *RecorderSuite) TestAppend_PublishesCommittedEntriesOnly() {
	ctrl := gomock.NewController(s.T())
	publisher := mocks.NewMockPublisher(ctrl)
	rec, err := New(s.store, WithPublisher(publisher))
	s.Require().NoError(err)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(1)

	first, err := rec.Append(s.ctx, s.draft("e-1"), "k-1")
	s.Require().NoError(err, "publish failures must not fail the append")
	replayed, err := rec.Append(s.ctx, s.draft("e-1"), "k-1")
	s.Require().NoError(err)
	s.Equal(first.ID, replayed.ID)
}
