// Package sessiontest checks a core.Session implementation against the
// queue semantics the engine and responder rely on.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/core"
)

const (
	deliveryWait = 5 * time.Second
	emptyWait    = 300 * time.Millisecond
)

// Run exercises s on queue, which must exist and be empty. Run leaves s
// disconnected.
func Run(t *testing.T, s core.Session, queue string) {
	t.Helper()
	ctx := context.Background()

	out, err := s.Open(ctx, queue, core.OpenOutput)
	require.NoError(t, err)
	in, err := s.Open(ctx, queue, core.OpenExclusiveInput)
	require.NoError(t, err)

	_, err = s.Open(ctx, queue, core.OpenExclusiveInput)
	assert.True(t, core.IsReason(err, core.ReasonObjectInUse), "second exclusive open: %v", err)

	t.Run("put and get", func(t *testing.T) {
		req := &core.Message{Type: core.MsgTypeRequest, ReplyTo: "RPY", Body: []byte{1, 2, 3, 4}}
		require.NoError(t, s.Put(ctx, out, req, core.DefaultPutOptions()))
		require.NotEmpty(t, req.MsgID)
		require.NotEmpty(t, req.CorrelID)

		var got core.Message
		require.NoError(t, s.Get(ctx, in, &got, core.GetOptions{Wait: deliveryWait, NoSyncpoint: true}))
		assert.Equal(t, core.MsgTypeRequest, got.Type)
		assert.Equal(t, req.MsgID, got.MsgID)
		assert.Equal(t, req.CorrelID, got.CorrelID)
		assert.Equal(t, "RPY", got.ReplyTo)
		assert.Equal(t, req.Body, got.Body)
	})

	t.Run("correlation match discards others", func(t *testing.T) {
		want := core.NewID()
		opts := core.PutOptions{NoSyncpoint: true, NewMsgID: true}
		require.NoError(t, s.Put(ctx, out, &core.Message{Type: core.MsgTypeReply, CorrelID: core.NewID(), Body: []byte{9}}, opts))
		require.NoError(t, s.Put(ctx, out, &core.Message{Type: core.MsgTypeReply, CorrelID: want, Body: []byte{7, 7}}, opts))

		var got core.Message
		err := s.Get(ctx, in, &got, core.GetOptions{Wait: deliveryWait, Match: core.MatchCorrelID, CorrelID: want})
		require.NoError(t, err)
		assert.Equal(t, want, got.CorrelID)
		assert.Equal(t, []byte{7, 7}, got.Body)

		err = s.Get(ctx, in, &got, core.GetOptions{Wait: emptyWait})
		assert.True(t, core.IsReason(err, core.ReasonNoMsgAvailable), "discarded delivery came back: %v", err)
	})

	t.Run("oversized delivery", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, out, &core.Message{Type: core.MsgTypeReply, Body: make([]byte, 32)}, core.DefaultPutOptions()))
		var got core.Message
		err := s.Get(ctx, in, &got, core.GetOptions{Wait: deliveryWait, MaxLength: 16})
		assert.True(t, core.IsReason(err, core.ReasonTruncatedMsgFailed), "got %v", err)
	})

	t.Run("wait elapses", func(t *testing.T) {
		start := time.Now()
		var got core.Message
		err := s.Get(ctx, in, &got, core.GetOptions{Wait: emptyWait})
		assert.True(t, core.IsReason(err, core.ReasonNoMsgAvailable), "got %v", err)
		assert.GreaterOrEqual(t, time.Since(start), emptyWait)
	})

	t.Run("cancelled wait", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		var got core.Message
		err := s.Get(cctx, in, &got, core.GetOptions{Wait: deliveryWait})
		assert.True(t, core.IsReason(err, core.ReasonStopping), "got %v", err)
	})

	t.Run("wrong mode", func(t *testing.T) {
		var got core.Message
		assert.ErrorIs(t, s.Get(ctx, out, &got, core.GetOptions{Wait: emptyWait}), core.ErrWrongMode)
		assert.ErrorIs(t, s.Put(ctx, in, &core.Message{}, core.DefaultPutOptions()), core.ErrWrongMode)
	})

	t.Run("close", func(t *testing.T) {
		require.NoError(t, s.Close(ctx, in))
		require.NoError(t, s.Close(ctx, in))
		require.NoError(t, s.Close(ctx, out))

		var got core.Message
		err := s.Get(ctx, in, &got, core.GetOptions{Wait: emptyWait})
		assert.True(t, core.IsReason(err, core.ReasonObjectClosed), "got %v", err)
		err = s.Put(ctx, out, &core.Message{Type: core.MsgTypeRequest}, core.DefaultPutOptions())
		assert.True(t, core.IsReason(err, core.ReasonObjectClosed), "got %v", err)

		again, err := s.Open(ctx, queue, core.OpenExclusiveInput)
		require.NoError(t, err, "exclusive input is released on close")
		require.NoError(t, s.Close(ctx, again))
	})

	t.Run("disconnect", func(t *testing.T) {
		require.NoError(t, s.Disconnect(ctx))
		require.NoError(t, s.Disconnect(ctx))

		_, err := s.Open(ctx, queue, core.OpenOutput)
		assert.True(t, core.IsReason(err, core.ReasonConnectionBroken), "got %v", err)
	})
}
