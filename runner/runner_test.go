package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/config"
	"github.com/miladsoleymani/mqrequest/core"
	"github.com/miladsoleymani/mqrequest/credentials"
	"github.com/miladsoleymani/mqrequest/internal/mock"
)

var goodCreds = credentials.Static{User: "app", Secret: "secret"}

func testConfig(n int) *config.Config {
	cfg := config.Default()
	cfg.Loop.BlockSize = 4
	cfg.Loop.Iterations = n
	cfg.Loop.Wait = 30 * time.Millisecond
	cfg.Loop.SubmitBackoff = time.Millisecond
	cfg.Responder.Poll = 10 * time.Millisecond
	return cfg
}

func newRunner(cfg *config.Config, tr *mock.Transport, creds credentials.Supplier, out *bytes.Buffer) (*Runner, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return New(cfg, tr, creds, WithOutput(out), WithLogger(logrus.NewEntry(logger))), hook
}

func ops(tr *mock.Transport) []string {
	var out []string
	for _, c := range tr.Calls() {
		op := c.Op
		if c.Queue != "" {
			op += " " + c.Queue
		}
		out = append(out, op)
	}
	return out
}

func TestRun_SingleIteration(t *testing.T) {
	tr := mock.NewTransport()
	tr.Reply = mock.EchoReplies
	var out bytes.Buffer
	r, _ := newRunner(testConfig(1), tr, goodCreds, &out)

	res := r.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, 1, res.Summary.Delivered)
	assert.Equal(t, []string{
		"connect QM_S1558",
		"open DEV.Q1",
		"open DEV.Q2",
		"put DEV.Q1",
		"get DEV.Q2",
		"close DEV.Q2",
		"close DEV.Q1",
		"disconnect",
	}, ops(tr))
	assert.True(t, strings.HasSuffix(out.String(), "Processing complete\n"))

	put := tr.Puts()[0]
	assert.Equal(t, core.MsgTypeRequest, put.Type)
	assert.Equal(t, "DEV.Q2", put.ReplyTo)
	assert.Equal(t, 16, put.Len())
	assert.NotEmpty(t, put.MsgID)
}

func TestRun_ProgressCadence(t *testing.T) {
	tr := mock.NewTransport()
	tr.Reply = mock.EchoReplies
	cfg := testConfig(50)
	var out bytes.Buffer
	r, _ := newRunner(cfg, tr, goodCreds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, 50, res.Summary.Delivered)
	assert.Equal(t, "\r25 Replies received\r50 Replies received\nProcessing complete\n", out.String())
}

func TestRun_MissingCredentials(t *testing.T) {
	tr := mock.NewTransport()
	var out bytes.Buffer
	creds := credentials.NewFile(filepath.Join(t.TempDir(), "mqusers"))
	r, hook := newRunner(testConfig(1), tr, creds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, ExitCredentials, res.ExitCode)
	assert.ErrorIs(t, res.Err, credentials.ErrCredentials)
	assert.Empty(t, tr.Calls(), "no transport call before credentials are read")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, out.String(), "Error pulling user credentials")
}

func TestRun_ConnectFailed(t *testing.T) {
	tr := mock.NewTransport()
	tr.ConnectErr = core.Failed("connect", core.ReasonQMgrNotAvailable, nil)
	var out bytes.Buffer
	r, _ := newRunner(testConfig(1), tr, goodCreds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, 2059, res.ExitCode)
	assert.Equal(t, []string{"connect QM_S1558"}, ops(tr))
	assert.NotContains(t, out.String(), "Processing complete")
}

func TestRun_ConnectWarning(t *testing.T) {
	tr := mock.NewTransport()
	tr.Reply = mock.EchoReplies
	tr.ConnectErr = core.Warning("connect", core.ReasonHostNotAvailable, nil)
	var out bytes.Buffer
	r, hook := newRunner(testConfig(2), tr, goodCreds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, 2, res.Summary.Delivered)
	assert.Contains(t, out.String(), "Continuing...")

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["reason"] == 2538 {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRun_OpenFailed(t *testing.T) {
	tests := []struct {
		name  string
		queue string
		known string
		want  []string
	}{
		{
			name:  "request queue",
			queue: "DEV.Q1",
			known: "DEV.Q2",
			want:  []string{"connect QM_S1558", "open DEV.Q1", "disconnect"},
		},
		{
			name:  "reply queue",
			queue: "DEV.Q2",
			known: "DEV.Q1",
			want:  []string{"connect QM_S1558", "open DEV.Q1", "open DEV.Q2", "close DEV.Q1", "disconnect"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := mock.NewTransport()
			tr.Known = map[string]bool{tt.known: true}
			var out bytes.Buffer
			r, _ := newRunner(testConfig(3), tr, goodCreds, &out)

			res := r.Run(context.Background())
			assert.Equal(t, int(core.CompletionFailed), res.ExitCode)
			assert.True(t, core.IsReason(res.Err, core.ReasonUnknownObjectName))
			assert.Equal(t, tt.want, ops(tr))
			assert.Contains(t, out.String(), "Unable to open "+tt.queue)
			assert.Contains(t, out.String(), "Disconnecting from QM_S1558 and exiting")
			assert.Zero(t, tr.Count("put"))
		})
	}
}

func TestRun_TimeoutEndsLoop(t *testing.T) {
	for _, exitOnLoopError := range []bool{false, true} {
		tr := mock.NewTransport()
		tr.Reply = mock.SilentAfter(1)
		cfg := testConfig(5)
		cfg.Loop.ExitOnLoopError = exitOnLoopError
		var out bytes.Buffer
		r, _ := newRunner(cfg, tr, goodCreds, &out)

		res := r.Run(context.Background())
		assert.Equal(t, 1, res.Summary.Delivered)
		assert.Equal(t, core.OutcomeTimeout, res.Summary.Last.Kind)
		assert.Equal(t, 2, tr.Count("put"))
		assert.Equal(t, 1, tr.Count("disconnect"))
		assert.Contains(t, out.String(), "timed out waiting for requested reply: Code 2033")
		if exitOnLoopError {
			assert.Equal(t, 2033, res.ExitCode)
		} else {
			assert.Equal(t, ExitOK, res.ExitCode)
		}
	}
}

func TestRun_GetError(t *testing.T) {
	tr := mock.NewTransport()
	tr.Reply = mock.EchoReplies
	tr.GetErr = func(n int) error {
		if n == 3 {
			return core.Failed("get", core.ReasonConnectionBroken, nil)
		}
		return nil
	}
	var out bytes.Buffer
	r, _ := newRunner(testConfig(10), tr, goodCreds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, 2, res.Summary.Delivered)
	assert.Equal(t, core.OutcomeTransportError, res.Summary.Last.Kind)
	assert.Contains(t, out.String(), "get returned code: 2009")
	assert.Equal(t, 2, tr.Count("close"))
}

func TestRun_TeardownFailuresAreReported(t *testing.T) {
	tr := mock.NewTransport()
	tr.Reply = mock.EchoReplies
	tr.CloseErr = core.Failed("close", core.ReasonConnectionBroken, nil)
	tr.DisconnectErr = core.Failed("disconnect", core.ReasonConnectionBroken, nil)
	var out bytes.Buffer
	r, _ := newRunner(testConfig(1), tr, goodCreds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, 2, tr.Count("close"))
	assert.Equal(t, 1, tr.Count("disconnect"))
	assert.Contains(t, out.String(), "close DEV.Q1 ended with reason code 2009")
	assert.Contains(t, out.String(), "disconnect ended with reason code 2009")
}

func TestRun_Cancelled(t *testing.T) {
	tr := mock.NewTransport()
	tr.Reply = mock.EchoReplies
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	r, _ := newRunner(testConfig(5), tr, goodCreds, &out)

	res := r.Run(ctx)
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, core.OutcomeStopped, res.Summary.Last.Kind)
	assert.Zero(t, tr.Count("put"))
	assert.Equal(t, 2, tr.Count("close"))
	assert.Equal(t, 1, tr.Count("disconnect"))
}

func TestRun_InvalidLoop(t *testing.T) {
	tr := mock.NewTransport()
	cfg := testConfig(1)
	cfg.Loop.Wait = 0
	var out bytes.Buffer
	r, _ := newRunner(cfg, tr, goodCreds, &out)

	res := r.Run(context.Background())
	assert.Equal(t, int(core.CompletionFailed), res.ExitCode)
	assert.Error(t, res.Err)
	assert.Equal(t, 1, tr.Count("disconnect"))
}

func TestServe_AnswersDriver(t *testing.T) {
	tr := mock.NewTransport()
	cfg := testConfig(3)
	cfg.Loop.Wait = time.Second
	cfg.Loop.MatchCorrelID = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger, _ := test.NewNullLogger()

	type served struct {
		n   int
		err error
	}
	done := make(chan served, 1)
	go func() {
		n, err := Serve(ctx, cfg, tr, goodCreds, logrus.NewEntry(logger))
		done <- served{n, err}
	}()

	var out bytes.Buffer
	r, _ := newRunner(cfg, tr, goodCreds, &out)
	res := r.Run(context.Background())
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, 3, res.Summary.Delivered)

	cancel()
	select {
	case s := <-done:
		require.NoError(t, s.err)
		assert.Equal(t, 3, s.n)
	case <-time.After(2 * time.Second):
		t.Fatal("responder did not stop")
	}
}

func TestServe_BadCredentials(t *testing.T) {
	tr := mock.NewTransport()
	_, err := Serve(context.Background(), testConfig(1), tr, credentials.Static{}, nil)
	assert.ErrorIs(t, err, credentials.ErrCredentials)
	assert.Empty(t, tr.Calls())
}
