package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu      gosync.Mutex
	replies []error
	count   int
	calls   int
}

func (s *scriptedSource) PollUnreadCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.replies) > 0 {
		err := s.replies[0]
		s.replies = s.replies[1:]
		if err != nil {
			return s.count, err
		}
	}
	s.count++
	return s.count, nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func nextResult(t *testing.T, p *Poller) CountResultMsg {
	t.Helper()

	select {
	case msg := <-p.resultCh:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll result")
		return CountResultMsg{}
	}
}

func TestPollerPollsImmediately(t *testing.T) {
	src := &scriptedSource{}
	p := New(src, time.Hour)

	cmd := p.Start()
	require.NotNil(t, cmd)
	defer p.Stop()

	msg, ok := cmd().(CountResultMsg)
	require.True(t, ok)
	assert.Equal(t, 1, msg.Count)
	assert.NoError(t, msg.Err)
	assert.Equal(t, PollIdle, p.Status().State)
	assert.False(t, p.Status().LastPoll.IsZero())
}

func TestPollerStartTwice(t *testing.T) {
	p := New(&scriptedSource{}, time.Hour)

	require.NotNil(t, p.Start())
	defer p.Stop()
	assert.Nil(t, p.Start())
}

func TestPollerTicks(t *testing.T) {
	src := &scriptedSource{}
	p := New(src, 10*time.Millisecond)
	p.Start()
	defer p.Stop()

	first := nextResult(t, p)
	second := nextResult(t, p)
	assert.Less(t, first.Count, second.Count)
}

func TestPollerReportsErrorWithLastCount(t *testing.T) {
	src := &scriptedSource{replies: []error{nil, errors.New("boom")}}
	p := New(src, time.Hour)
	p.Start()
	defer p.Stop()

	first := nextResult(t, p)
	require.NoError(t, first.Err)

	p.Refresh()
	second := nextResult(t, p)
	require.Error(t, second.Err)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, PollError, p.Status().State)
}

func TestPollerRefresh(t *testing.T) {
	src := &scriptedSource{}
	p := New(src, time.Hour)
	p.Start()
	defer p.Stop()

	nextResult(t, p)
	assert.Nil(t, p.Refresh())
	nextResult(t, p)
	assert.Equal(t, 2, src.Calls())
}

func TestPollerStopEndsLoop(t *testing.T) {
	src := &scriptedSource{}
	p := New(src, 5*time.Millisecond)
	p.Start()
	nextResult(t, p)

	p.Stop()
	calls := src.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.Calls())

	p.Stop()
}

func TestPollerDefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(&scriptedSource{}, 0).Interval())
}
