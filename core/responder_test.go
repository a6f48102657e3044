package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/core"
	"github.com/miladsoleymani/mqrequest/internal/mock"
)

func TestResponder_EngineRoundTrip(t *testing.T) {
	tr := mock.NewTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rs, err := tr.Connect(ctx, "QM", core.Credentials{User: "svc", Secret: "pw"})
	require.NoError(t, err)
	resp := core.NewResponder(rs, "REQ", 10*time.Millisecond, nil)

	served := make(chan int, 1)
	go func() {
		n, err := resp.Serve(ctx)
		assert.NoError(t, err)
		served <- n
	}()

	s, req, rpy := openPair(t, tr)
	cfg := testConfig(4)
	cfg.Wait = time.Second
	cfg.MatchCorrelID = true
	sum, err := core.NewEngine(s, req, rpy, &seedGen{}, cfg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Delivered)

	cancel()
	assert.Equal(t, 4, <-served)
	assert.Equal(t, 0, tr.Depth("REQ"))
}

func TestResponder_DiscardsRequestsWithoutReplyTo(t *testing.T) {
	tr := mock.NewTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rs, err := tr.Connect(ctx, "QM", core.Credentials{User: "svc", Secret: "pw"})
	require.NoError(t, err)
	tr.Deliver("REQ", &core.Message{Type: core.MsgTypeRequest, MsgID: "m-1", Body: []byte("x")})
	tr.Deliver("REQ", &core.Message{Type: core.MsgTypeRequest, MsgID: "m-2", ReplyTo: "OUT", Body: []byte("y")})

	upper := func(b []byte) []byte { return append([]byte("re:"), b...) }
	resp := core.NewResponder(rs, "REQ", 10*time.Millisecond, upper)

	done := make(chan int, 1)
	go func() {
		n, _ := resp.Serve(ctx)
		done <- n
	}()

	require.Eventually(t, func() bool { return tr.Depth("OUT") == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.Equal(t, 1, <-done)

	var replies []core.Message
	for _, p := range tr.Puts() {
		if p.Type == core.MsgTypeReply {
			replies = append(replies, p)
		}
	}
	require.Len(t, replies, 1)
	assert.Equal(t, "m-2", replies[0].CorrelID)
	assert.Equal(t, []byte("re:y"), replies[0].Body)
	calls := tr.Calls()
	assert.Equal(t, "close", calls[len(calls)-1].Op)
}

func TestResponder_QueueInUse(t *testing.T) {
	tr := mock.NewTransport()
	ctx := context.Background()
	s, _, _ := openPair(t, tr)

	_, err := core.NewResponder(s, "RPY", time.Millisecond, nil).Serve(ctx)
	assert.True(t, core.IsReason(err, core.ReasonObjectInUse))
}
