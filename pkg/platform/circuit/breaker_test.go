package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) breaker(opts ...Option) *Breaker {
	opts = append(opts, WithClock(func() time.Time { return s.now }))
	return New("assistant-generator", opts...)
}

func (s *BreakerSuite) TestStartsClosed() {
	b := s.breaker()
	s.Equal("assistant-generator", b.Name())
	s.Equal(StateClosed, b.State())
	s.Equal("closed", b.State().String())
	s.True(b.Allow())
}

// TestOutcomeSequences replays outcomes ('f' failure, 's' success) and
// checks whether the breaker is open after each one.
func (s *BreakerSuite) TestOutcomeSequences() {
	tests := []struct {
		name      string
		failures  int
		successes int
		outcomes  string
		open      string
	}{
		{"opens on the third consecutive failure", 3, 1, "fff", "..o"},
		{"a success resets the failure count", 3, 1, "ffsfff", ".....o"},
		{"closes after enough successes", 1, 2, "fss", "oo."},
		{"a failure while open resets the success count", 1, 3, "fssfsss", "oooooo."},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			b := s.breaker(WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			for i, outcome := range tt.outcomes {
				if outcome == 'f' {
					b.RecordFailure()
				} else {
					b.RecordSuccess()
				}
				s.Equal(tt.open[i] == 'o', b.IsOpen(), "after outcome %d (%c)", i+1, outcome)
			}
		})
	}
}

func (s *BreakerSuite) TestStateChangesAreReportedOnce() {
	b := s.breaker(WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, change := b.RecordFailure()
	s.False(useFallback)
	s.False(change.Opened)

	useFallback, change = b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)

	useFallback, change = b.RecordFailure()
	s.True(useFallback, "still open")
	s.False(change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.Equal("open", StateOpen.String())
}

func (s *BreakerSuite) TestCooldownGatesProbes() {
	b := s.breaker(WithFailureThreshold(2), WithCooldown(30*time.Second))

	b.RecordFailure()
	s.True(b.Allow(), "below the threshold")
	b.RecordFailure()
	s.False(b.Allow(), "freshly opened")

	s.now = s.now.Add(29 * time.Second)
	s.False(b.Allow())

	s.now = s.now.Add(time.Second)
	s.True(b.Allow(), "cooldown elapsed, one probe goes through")

	b.RecordFailure()
	s.False(b.Allow(), "a failed probe restarts the cooldown")
}

func (s *BreakerSuite) TestReset() {
	b := s.breaker(WithFailureThreshold(1))
	b.RecordFailure()
	s.True(b.IsOpen())

	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}
