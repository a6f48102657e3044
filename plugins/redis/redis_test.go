package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
	"github.com/miladsoleymani/mqrequest/internal/sessiontest"
)

type serverErr string

func (e serverErr) Error() string { return string(e) }
func (serverErr) RedisError()     {}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = broker.Create("redis", broker.Config{})
	assert.Error(t, err)
}

func TestConnect_EmptyCredentials(t *testing.T) {
	tr, err := New([]string{"127.0.0.1:1"})
	require.NoError(t, err)

	_, err = tr.Connect(context.Background(), "QM", core.Credentials{})
	assert.True(t, core.IsReason(err, core.ReasonNotAuthorized))
}

func TestConnect_Unreachable(t *testing.T) {
	tr, err := New([]string{"127.0.0.1:1"}, WithDialTimeout(200*time.Millisecond))
	require.NoError(t, err)

	_, err = tr.Connect(context.Background(), "QM", core.Credentials{User: "u", Secret: "pw"})
	assert.True(t, core.IsReason(err, core.ReasonHostNotAvailable), "got %v", err)
}

func TestEnvelope(t *testing.T) {
	msg := &core.Message{Type: core.MsgTypeRequest, MsgID: "m", ReplyTo: "DEV.Q2", Body: []byte{7, 0, 0, 0}}
	raw, err := encode(msg)
	require.NoError(t, err)

	got, err := decode(raw)
	require.NoError(t, err)
	assert.Equal(t, *msg, got)

	_, err = decode([]byte("not json"))
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want core.ReasonCode
	}{
		{goredis.Nil, core.ReasonNoMsgAvailable},
		{goredis.ErrClosed, core.ReasonConnectionBroken},
		{context.Canceled, core.ReasonStopping},
		{serverErr("WRONGPASS invalid username-password pair"), core.ReasonNotAuthorized},
		{serverErr("NOAUTH Authentication required."), core.ReasonNotAuthorized},
		{serverErr("LOADING Redis is loading the dataset in memory"), core.ReasonQMgrNotAvailable},
		{serverErr("ERR unknown command"), core.ReasonUnexpectedError},
		{errors.New("?"), core.ReasonUnexpectedError},
	}
	for _, tt := range tests {
		err := mapError("op", tt.err, core.ReasonUnexpectedError)
		assert.True(t, core.IsReason(err, tt.want), "%v -> %v", tt.err, err)
	}
}

func TestOptsFromConfig(t *testing.T) {
	o := defaults()
	for _, fn := range optsFromConfig(broker.Config{Extra: map[string]any{"db": 3, "key_prefix": "x:", "owner_ttl": "30s"}}) {
		fn(&o)
	}
	assert.Equal(t, 3, o.db)
	assert.Equal(t, "x:", o.keyPrefix)
	assert.Equal(t, 30*time.Second, o.ownerTTL)
	assert.Equal(t, defaults().poolSize, o.poolSize)
}

func TestTake_DiscardsUndecodable(t *testing.T) {
	logger, hook := test.NewNullLogger()
	o := defaults()
	o.logger = logrus.NewEntry(logger)
	s := &session{opts: o}
	h := &handle{queue: "DEV.Q1", key: "mq:DEV.Q1"}

	_, ok := s.take(h, "not an envelope")
	assert.False(t, ok)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "DEV.Q1", hook.LastEntry().Data["queue"])

	hook.Reset()
	raw, err := encode(&core.Message{Type: core.MsgTypeReply, MsgID: "m1", Body: []byte{9}})
	require.NoError(t, err)
	got, ok := s.take(h, string(raw))
	assert.True(t, ok)
	assert.Equal(t, "m1", got.MsgID)
	assert.Empty(t, hook.AllEntries())
}

// liveSession connects to the server named by REDIS_ADDR under a fresh key
// prefix, skipping the test when it is unset.
func liveSession(t *testing.T) core.Session {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	user, secret := os.Getenv("REDIS_USER"), os.Getenv("REDIS_PASSWORD")
	if user == "" {
		user = "default"
	}
	ctx := context.Background()
	tr, err := New([]string{addr}, WithKeyPrefix("mqtest:"+core.NewID()+":"))
	require.NoError(t, err)

	s, err := tr.Connect(ctx, "QM", core.Credentials{User: user, Secret: secret})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestSession_Live(t *testing.T) {
	sessiontest.Run(t, liveSession(t), "DEV.Q1")
}

func TestGet_WaitsFullInterval(t *testing.T) {
	s := liveSession(t)
	ctx := context.Background()

	in, err := s.Open(ctx, "DEV.Q2", core.OpenExclusiveInput)
	require.NoError(t, err)
	defer s.Close(ctx, in)

	wait := 1500 * time.Millisecond
	start := time.Now()
	var got core.Message
	err = s.Get(ctx, in, &got, core.GetOptions{Wait: wait})
	assert.True(t, core.IsReason(err, core.ReasonNoMsgAvailable))
	assert.GreaterOrEqual(t, time.Since(start), wait)
}
