package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/shop/texts"
)

func TestGetCreatesDefault(t *testing.T) {
	s := NewStore(nil)
	sess := s.Get(42)
	assert.Equal(t, int64(42), sess.UserID)
	assert.Equal(t, StateInit, sess.State)
	assert.Equal(t, texts.Default, sess.Language)
	assert.Equal(t, AwaitingNone, sess.Awaiting())
	assert.False(t, sess.Paid())
	assert.Equal(t, 1, s.Len())
}

func TestUpdateDiscardsOnError(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Update(1, func(sess *Session) error {
		sess.State = StateLangChosen
		return nil
	}))

	boom := errors.New("boom")
	err := s.Update(1, func(sess *Session) error {
		sess.State = StateServiceChosen
		sess.SelectedService = "disney"
		return boom
	})
	require.ErrorIs(t, err, boom)

	sess := s.Get(1)
	assert.Equal(t, StateLangChosen, sess.State)
	assert.Empty(t, sess.SelectedService)
}

func TestUpdateStampsTime(t *testing.T) {
	c := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := NewStore(c)
	require.NoError(t, s.Update(7, func(sess *Session) error { return nil }))
	assert.Equal(t, c.Now(), s.Get(7).UpdatedAt)
}

func TestResetRestoresDefaults(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Update(5, func(sess *Session) error {
		sess.Language = texts.Russian
		sess.State = StateServiceChosen
		sess.SelectedService = "adobe"
		return nil
	}))
	s.Reset(5)
	sess := s.Get(5)
	assert.Equal(t, StateInit, sess.State)
	assert.Equal(t, texts.Default, sess.Language)
	assert.Empty(t, sess.SelectedService)
}

func TestUpdateSerializesSameUser(t *testing.T) {
	s := NewStore(nil)
	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = s.Update(9, func(sess *Session) error {
				ref := sess.PaymentRef
				time.Sleep(time.Microsecond)
				sess.PaymentRef = ref + "x"
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, s.Get(9).PaymentRef, workers)
}

func TestDifferentUsersDoNotBlock(t *testing.T) {
	s := NewStore(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Update(1, func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = s.Update(2, func(sess *Session) error {
			sess.State = StateLangChosen
			return nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update for user 2 blocked behind user 1")
	}
	close(release)
}

func TestDerivedFlags(t *testing.T) {
	tests := []struct {
		state    State
		awaiting Awaiting
		paid     bool
	}{
		{StateInit, AwaitingNone, false},
		{StateStarsPending, AwaitingNone, false},
		{StateCryptoPending, AwaitingScreenshot, false},
		{StatePaid, AwaitingNone, true},
		{StateAwaitingEmail, AwaitingEmail, true},
		{StateSupportLocked, AwaitingNone, true},
	}
	for _, tt := range tests {
		sess := Session{State: tt.state}
		assert.Equal(t, tt.awaiting, sess.Awaiting(), tt.state)
		assert.Equal(t, tt.paid, sess.Paid(), tt.state)
	}
}

func TestPhaseUnlocksAfterDeadline(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := Session{State: StateSupportLocked, SupportUnlockAt: at}
	assert.Equal(t, StateSupportLocked, sess.Phase(at.Add(-time.Second)))
	assert.Equal(t, StateSupportUnlocked, sess.Phase(at))
}

func TestValidate(t *testing.T) {
	ok := Session{UserID: 1, State: StateCryptoPending, PaymentMethod: MethodCrypto, SelectedService: "disney"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.PaymentMethod = MethodStars
	assert.Error(t, bad.Validate())

	noService := Session{UserID: 1, State: StateServiceChosen}
	assert.Error(t, noService.Validate())

	paidNoRef := Session{UserID: 1, State: StatePaid, SelectedService: "x", PaymentMethod: MethodStars}
	assert.Error(t, paidNoRef.Validate())
}
