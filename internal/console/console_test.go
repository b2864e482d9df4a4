package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/examroom/internal/approval"
	"github.com/xelth-com/examroom/internal/quiz"
	"github.com/xelth-com/examroom/internal/session"
	"github.com/xelth-com/examroom/internal/store"
)

// syncBuffer lets timer goroutines write while the test reads
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestConsole_ReadLineAndConfirm(t *testing.T) {
	out := &bytes.Buffer{}
	c := New(strings.NewReader("hello\r\ny\nno\nlast"), out)

	line, err := c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	assert.True(t, c.Confirm("sure?"))
	assert.False(t, c.Confirm("sure?"))

	line, err = c.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = c.ReadLine()
	assert.Error(t, err)
	assert.False(t, c.Confirm("sure?"), "closed input declines")
	assert.Contains(t, out.String(), "sure? [y/N]")
}

func TestConsole_ReadSecretWithoutTerminal(t *testing.T) {
	out := &bytes.Buffer{}
	c := New(strings.NewReader("s3cret\n"), out)

	got, err := c.ReadSecret("key: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, "key: ", out.String())
}

func TestRender_AdminList(t *testing.T) {
	now := time.UnixMilli(1_700_000_100_000)
	reqs := []approval.AccessRequest{
		{ID: "b", Name: "ანა", Status: approval.StatusPending, Timestamp: now.Add(-2 * time.Minute).UnixMilli()},
		{ID: "a", Name: "Giorgi", Status: approval.StatusApproved, Timestamp: now.Add(-3 * time.Hour).UnixMilli()},
	}

	out := Admin(reqs, now)
	assert.Contains(t, out, "ანა")
	assert.Contains(t, out, "2 minutes ago")
	assert.Contains(t, out, "3 hours ago")
	assert.Contains(t, out, "[1] "+LabelApprove)
	assert.Contains(t, out, LabelApproved)
	assert.Contains(t, out, "1 pending, 1 approved")
	assert.NotContains(t, out, LabelNoRequests)

	assert.Contains(t, Admin(nil, now), LabelNoRequests)
}

func TestRender_Question(t *testing.T) {
	q := quiz.DefaultQuestions()[0]
	v := quiz.View{Index: 0, Total: 10, Question: q, Selected: -1, Remaining: 42 * time.Second}

	out := Question(v)
	assert.Contains(t, out, "HTML")
	assert.Contains(t, out, "1/10")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, LabelCheck)

	wrong := (q.Correct + 1) % len(q.Options)
	v.Selected = wrong
	v.Answered = true
	v.Index = 9
	out = Question(v)
	assert.Contains(t, out, "✓ ")
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, LabelFinish)
	assert.NotContains(t, out, LabelCheck)

	assert.Empty(t, Question(quiz.View{Finished: true}))
}

func TestRender_Result(t *testing.T) {
	passed := Result(quiz.Results{Score: 8, TotalQuestions: 10, Passed: true, UserName: "Nino", Date: "01.02.2025"}, "ka-GE")
	assert.Contains(t, passed, "PASSED")
	assert.Contains(t, passed, "80%")
	assert.Contains(t, passed, LabelIssue)

	failed := Result(quiz.Results{Score: 7, TotalQuestions: 10, UserName: "Nino"}, "ka-GE")
	assert.Contains(t, failed, "FAILED")
	assert.NotContains(t, failed, LabelIssue)
	assert.Contains(t, failed, LabelRetry)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░]", progressBar(-1, 4))
	assert.Equal(t, "[██░░]", progressBar(0.5, 4))
	assert.Equal(t, "[████]", progressBar(2, 4))
}

type appHarness struct {
	relay *store.MemoryRelay
	out   *syncBuffer
}

func (h *appHarness) registry(t *testing.T) *approval.Registry {
	r := approval.NewRegistry(h.relay.Connect(), "room_console")
	r.Open()
	t.Cleanup(r.Close)
	return r
}

func (h *appHarness) app(t *testing.T, input string) (*App, *session.Controller) {
	con := New(strings.NewReader(input), h.out)
	ctl := session.New(session.Options{
		Registry:   h.registry(t),
		Notifier:   con,
		Confirmer:  con,
		Passphrase: "admin2025",
		Quiz: func(name string, done func(quiz.Results)) session.QuizRun {
			return quiz.New(name, quiz.Options{Clock: quiz.NewManualClock(time.Unix(0, 0))}, done)
		},
	})
	t.Cleanup(ctl.Close)
	return NewApp(con, ctl, AppOptions{Locale: "ka-GE", CertDir: t.TempDir()}), ctl
}

func TestApp_AdminApprovesFromConsole(t *testing.T) {
	h := &appHarness{relay: store.NewMemoryRelay(), out: &syncBuffer{}}
	candidate := h.registry(t)
	_, err := candidate.RequestAccess("ანა")
	require.NoError(t, err)

	app, ctl := h.app(t, ".\nadmin2025\n1\n")
	require.NoError(t, app.Run())

	snap := ctl.Snapshot()
	require.Equal(t, session.Admin, snap.State)
	require.Len(t, snap.Requests, 1)
	assert.Equal(t, approval.StatusApproved, snap.Requests[0].Status)

	out := h.out.String()
	assert.Contains(t, out, LabelAdminTitle)
	assert.Contains(t, out, LabelApproved)
}

func TestApp_WrongKeyStaysOnPrompt(t *testing.T) {
	h := &appHarness{relay: store.NewMemoryRelay(), out: &syncBuffer{}}
	app, ctl := h.app(t, ".\nwrong\nalso-wrong\n\n")
	require.NoError(t, app.Run())

	snap := ctl.Snapshot()
	assert.Equal(t, session.Landing, snap.State)
	assert.False(t, snap.AdminPrompt, "empty key backs out of the prompt")
	out := h.out.String()
	assert.Equal(t, 2, strings.Count(out, session.MsgWrongPassphrase))
	assert.Equal(t, 3, strings.Count(out, "🔑 "), "each wrong key asks again")
	assert.NotContains(t, out, session.MsgEmptyName)
}

func TestApp_WrongKeyThenCorrectEntersAdmin(t *testing.T) {
	h := &appHarness{relay: store.NewMemoryRelay(), out: &syncBuffer{}}
	app, ctl := h.app(t, ".\nwrong\nadmin2025\n")
	require.NoError(t, app.Run())

	assert.Equal(t, session.Admin, ctl.Snapshot().State)
	assert.Equal(t, 1, strings.Count(h.out.String(), session.MsgWrongPassphrase))
}

func TestApp_CandidateWaitsThenQuizStarts(t *testing.T) {
	h := &appHarness{relay: store.NewMemoryRelay(), out: &syncBuffer{}}
	app, ctl := h.app(t, "ანა\n")
	require.NoError(t, app.Run())

	snap := ctl.Snapshot()
	require.Equal(t, session.Waiting, snap.State)
	assert.Contains(t, h.out.String(), LabelWaitTitle)

	admin := h.registry(t)
	require.NoError(t, admin.Approve(snap.RequestID))

	assert.Equal(t, session.Quiz, ctl.Snapshot().State)
	assert.Contains(t, h.out.String(), LabelCategory)
}
