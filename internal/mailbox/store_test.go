package mailbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailroom/internal/mailbox"
	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
	"github.com/nhle/mailroom/internal/testutil"
)

// stubGateway serves a fixed mailbox and lets tests intercept each call.
type stubGateway struct {
	mu    sync.Mutex
	calls map[string]int

	list func(ctx context.Context, recipient string, page, perPage int) (*model.MailPage, error)
	read func(ctx context.Context, key string, value bool) error
	star func(ctx context.Context, key string, value bool) error
	del  func(ctx context.Context, key string) error
}

func newStub(total int) *stubGateway {
	all := records(total)
	return &stubGateway{
		calls: make(map[string]int),
		list: func(_ context.Context, _ string, page, perPage int) (*model.MailPage, error) {
			return window(all, page, perPage), nil
		},
	}
}

func (s *stubGateway) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubGateway) record(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *stubGateway) ListMail(ctx context.Context, recipient string, page, perPage int) (*model.MailPage, error) {
	s.record("list")
	return s.list(ctx, recipient, page, perPage)
}

func (s *stubGateway) SetReadFlag(ctx context.Context, key string, value bool) error {
	s.record("read")
	if s.read == nil {
		return nil
	}
	return s.read(ctx, key, value)
}

func (s *stubGateway) SetStarFlag(ctx context.Context, key string, value bool) error {
	s.record("star")
	if s.star == nil {
		return nil
	}
	return s.star(ctx, key, value)
}

func (s *stubGateway) DeleteMail(ctx context.Context, key string) error {
	s.record("delete")
	if s.del == nil {
		return nil
	}
	return s.del(ctx, key)
}

func records(n int) []model.MailRecord {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]model.MailRecord, n)
	for i := range out {
		out[i] = model.MailRecord{
			S3Key:   fmt.Sprintf("k%d", i+1),
			From:    fmt.Sprintf("sender%d@example.com", i+1),
			To:      "me@example.com",
			Subject: fmt.Sprintf("message %d", i+1),
			Body:    "hello",
			Date:    base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

// window mimics the server: total_pages is zero for an empty mailbox.
func window(all []model.MailRecord, page, perPage int) *model.MailPage {
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	pages := len(all) / perPage
	if len(all)%perPage > 0 {
		pages++
	}
	return &model.MailPage{
		Mails:      append([]model.MailRecord(nil), all[start:end]...),
		Total:      len(all),
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
	}
}

func newStore(gw mailbox.Gateway) *mailbox.Store {
	return mailbox.New(gw, nil, 20, zerolog.Nop())
}

func flag(t *testing.T, s *mailbox.Store, key string) model.MailRecord {
	t.Helper()
	st := s.Snapshot()
	idx := st.Page.IndexOf(key)
	require.GreaterOrEqual(t, idx, 0, "key %s not on page", key)
	return st.Page.Mails[idx]
}

func TestLoad_PageBookkeeping(t *testing.T) {
	ctx := context.Background()
	gw := newStub(45)
	s := newStore(gw)

	require.NoError(t, s.Load(ctx, "", 1))
	st := s.Snapshot()
	assert.Equal(t, 1, st.Page.Page)
	assert.Equal(t, 20, st.Page.PerPage)
	assert.Equal(t, 45, st.Page.Total)
	assert.Equal(t, 3, st.Page.TotalPages)
	assert.Len(t, st.Page.Mails, 20)
	assert.True(t, st.Loaded)

	require.NoError(t, s.Load(ctx, "", 3))
	st = s.Snapshot()
	assert.Equal(t, 3, st.Page.Page)
	assert.Len(t, st.Page.Mails, 5)
	assert.Equal(t, "k41", st.Page.Mails[0].S3Key)
}

func TestLoad_PageBeyondTotalFailsAndKeepsState(t *testing.T) {
	ctx := context.Background()
	gw := newStub(45)
	s := newStore(gw)

	require.NoError(t, s.Load(ctx, "", 3))
	before := s.Snapshot()

	err := s.Load(ctx, "", 4)
	require.Error(t, err)
	assert.True(t, mailerr.IsValidation(err))

	after := s.Snapshot()
	assert.Equal(t, before.Page, after.Page)
	assert.Equal(t, 3, after.Page.Page)
	assert.False(t, after.Loading)
}

func TestLoad_PageBelowOneRejectedBeforeNetwork(t *testing.T) {
	gw := newStub(45)
	s := newStore(gw)

	for _, page := range []int{0, -1} {
		err := s.Load(context.Background(), "", page)
		require.Error(t, err)
		assert.True(t, mailerr.IsValidation(err))
	}
	assert.Equal(t, 0, gw.count("list"))
}

func TestLoad_EmptyMailboxHasOnePage(t *testing.T) {
	gw := newStub(0)
	s := newStore(gw)

	require.NoError(t, s.Load(context.Background(), "", 1))
	st := s.Snapshot()
	assert.Equal(t, 1, st.Page.TotalPages)
	assert.Equal(t, 0, st.Page.Total)
	assert.Empty(t, st.Page.Mails)
	assert.True(t, st.Page.PageInRange(1))
	assert.False(t, st.Page.PageInRange(2))
}

func TestLoad_ErrorKeepsPreviousPage(t *testing.T) {
	ctx := context.Background()
	gw := newStub(45)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	apiErr := &mailerr.APIError{StatusCode: 500, Message: "storage offline"}
	gw.list = func(context.Context, string, int, int) (*model.MailPage, error) {
		return nil, apiErr
	}

	err := s.Load(ctx, "", 2)
	require.ErrorIs(t, err, apiErr)

	st := s.Snapshot()
	assert.Equal(t, 1, st.Page.Page)
	assert.Len(t, st.Page.Mails, 20)
	assert.Equal(t, apiErr, st.Err)
}

func TestLoad_StaleResponseDiscarded(t *testing.T) {
	ctx := context.Background()
	all := records(45)

	entered := make(chan struct{})
	release := make(chan struct{})

	gw := newStub(45)
	gw.list = func(_ context.Context, _ string, page, perPage int) (*model.MailPage, error) {
		if page == 1 {
			close(entered)
			<-release
		}
		return window(all, page, perPage), nil
	}
	s := newStore(gw)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Load(ctx, "", 1) }()
	<-entered

	require.NoError(t, s.Load(ctx, "", 2))
	close(release)

	err := <-errCh
	require.ErrorIs(t, err, mailbox.ErrStaleLoad)

	st := s.Snapshot()
	assert.Equal(t, 2, st.Page.Page)
	assert.Equal(t, "k21", st.Page.Mails[0].S3Key)
	assert.False(t, st.Loading)
}

func TestReload_UsesActiveFilterAndPage(t *testing.T) {
	ctx := context.Background()

	var gotRecipient string
	var gotPage int
	gw := newStub(45)
	all := records(45)
	gw.list = func(_ context.Context, recipient string, page, perPage int) (*model.MailPage, error) {
		gotRecipient, gotPage = recipient, page
		return window(all, page, perPage), nil
	}
	s := newStore(gw)

	require.NoError(t, s.Load(ctx, "me@example.com", 2))
	require.NoError(t, s.Reload(ctx))

	assert.Equal(t, "me@example.com", gotRecipient)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 2, gw.count("list"))
}

func TestSetReadFlag_TwiceIssuesTwoCalls(t *testing.T) {
	ctx := context.Background()
	gw := newStub(5)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	require.NoError(t, s.SetReadFlag(ctx, "k2", true))
	require.NoError(t, s.SetReadFlag(ctx, "k2", true))

	assert.True(t, flag(t, s, "k2").IsRead)
	assert.Equal(t, 2, gw.count("read"))
}

func TestSetStarFlag_FailureRestoresFlag(t *testing.T) {
	ctx := context.Background()
	gw := newStub(5)
	gw.star = func(context.Context, string, bool) error {
		return &mailerr.APIError{StatusCode: 500, Message: "could not update state"}
	}
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	err := s.SetStarFlag(ctx, "k3", true)
	require.Error(t, err)
	assert.True(t, mailerr.IsAPI(err))
	assert.Equal(t, "could not update state", err.Error())

	assert.False(t, flag(t, s, "k3").IsStarred)
}

func TestSetReadFlag_AppliedBeforeResponseAndRolledBack(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan error)

	gw := newStub(5)
	gw.read = func(context.Context, string, bool) error {
		close(entered)
		return <-release
	}
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	errCh := make(chan error, 1)
	go func() { errCh <- s.SetReadFlag(ctx, "k1", true) }()
	<-entered

	assert.True(t, flag(t, s, "k1").IsRead, "flag should be applied optimistically")

	release <- &mailerr.TransportError{Op: "PATCH /api/mails/k1/read", Err: errors.New("connection reset")}
	err := <-errCh
	require.Error(t, err)
	assert.True(t, mailerr.IsTransport(err))
	assert.False(t, flag(t, s, "k1").IsRead)
}

func TestSetFlag_LeavesOtherFieldsUntouched(t *testing.T) {
	ctx := context.Background()
	gw := newStub(5)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))
	before := s.Snapshot()

	require.NoError(t, s.SetStarFlag(ctx, "k4", true))

	after := s.Snapshot()
	want := before.Page.Mails[3]
	want.IsStarred = true
	assert.Equal(t, want, after.Page.Mails[3])
	assert.Equal(t, before.Page.Total, after.Page.Total)
	for i, key := range []string{"k1", "k2", "k3", "k4", "k5"} {
		assert.Equal(t, key, after.Page.Mails[i].S3Key, "order must not change")
	}
}

func TestSetFlag_KeyNotOnPageGoesToNetworkOnly(t *testing.T) {
	ctx := context.Background()
	gw := newStub(5)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))
	before := s.Snapshot()

	require.NoError(t, s.SetReadFlag(ctx, "elsewhere", true))

	assert.Equal(t, 1, gw.count("read"))
	assert.Equal(t, before.Page, s.Snapshot().Page)
}

func TestSetStarFlag_ConcurrentTogglesLastToResolveWins(t *testing.T) {
	ctx := context.Background()
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})

	gw := newStub(5)
	gw.star = func(_ context.Context, _ string, value bool) error {
		if value {
			close(firstEntered)
			<-releaseFirst
		}
		return nil
	}
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	errCh := make(chan error, 1)
	go func() { errCh <- s.SetStarFlag(ctx, "k1", true) }()
	<-firstEntered

	// The second toggle settles first.
	require.NoError(t, s.SetStarFlag(ctx, "k1", false))
	assert.False(t, flag(t, s, "k1").IsStarred)

	close(releaseFirst)
	require.NoError(t, <-errCh)

	assert.True(t, flag(t, s, "k1").IsStarred)
	assert.Equal(t, 2, gw.count("star"))
}

func TestMutation_ProceedsWhileLoadInFlight(t *testing.T) {
	ctx := context.Background()
	all := records(45)
	entered := make(chan struct{})
	release := make(chan struct{})

	gw := newStub(45)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	gw.list = func(_ context.Context, _ string, page, perPage int) (*model.MailPage, error) {
		close(entered)
		<-release
		return window(all, page, perPage), nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Load(ctx, "", 2) }()
	<-entered

	assert.True(t, s.Snapshot().Loading)

	done := make(chan error, 1)
	go func() { done <- s.SetStarFlag(ctx, "k1", true) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("flag update blocked behind in-flight load")
	}
	assert.True(t, flag(t, s, "k1").IsStarred)

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, 2, s.Snapshot().Page.Page)
}

func TestRemove_DecrementsTotalKeepsPaging(t *testing.T) {
	ctx := context.Background()
	gw := newStub(45)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	require.NoError(t, s.Remove(ctx, "k1"))

	st := s.Snapshot()
	assert.Equal(t, -1, st.Page.IndexOf("k1"))
	assert.Len(t, st.Page.Mails, 19)
	assert.Equal(t, 44, st.Page.Total)
	assert.Equal(t, 1, st.Page.Page)
	assert.Equal(t, 20, st.Page.PerPage)
	assert.Equal(t, 3, st.Page.TotalPages)
	assert.Equal(t, 1, gw.count("delete"))
}

func TestRemove_FailureRestoresAtOriginalPosition(t *testing.T) {
	ctx := context.Background()
	gw := newStub(45)
	gw.del = func(context.Context, string) error {
		return &mailerr.TransportError{Op: "DELETE", StatusCode: 502, Body: "bad gateway"}
	}
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))
	before := s.Snapshot()

	err := s.Remove(ctx, "k5")
	require.Error(t, err)
	assert.True(t, mailerr.IsTransport(err))

	after := s.Snapshot()
	assert.Equal(t, before.Page.Mails, after.Page.Mails)
	assert.Equal(t, 4, after.Page.IndexOf("k5"))
	assert.Equal(t, 45, after.Page.Total)
}

func TestRemove_FailureAfterNavigationLeavesNewPage(t *testing.T) {
	ctx := context.Background()
	gw := newStub(45)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.del = func(context.Context, string) error {
		close(entered)
		<-release
		return &mailerr.TransportError{Op: "DELETE", StatusCode: 502, Body: "bad gateway"}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Remove(ctx, "k5") }()
	<-entered

	require.NoError(t, s.Load(ctx, "", 2))
	close(release)
	require.Error(t, <-errCh)

	st := s.Snapshot()
	assert.Equal(t, 2, st.Page.Page)
	assert.Equal(t, -1, st.Page.IndexOf("k5"))
	assert.Len(t, st.Page.Mails, 20)
	assert.Equal(t, 45, st.Page.Total)
	assert.Equal(t, "k21", st.Page.Mails[0].S3Key)
}

func TestSetStarFlag_FailureAfterReloadKeepsServerValue(t *testing.T) {
	ctx := context.Background()
	all := records(45)
	gw := newStub(45)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	// Starred elsewhere by the time the page is reloaded.
	all[0].IsStarred = true
	gw.list = func(_ context.Context, _ string, page, perPage int) (*model.MailPage, error) {
		return window(all, page, perPage), nil
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.star = func(context.Context, string, bool) error {
		close(entered)
		<-release
		return &mailerr.APIError{StatusCode: 500, Message: "flag store offline"}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.SetStarFlag(ctx, "k1", true) }()
	<-entered

	require.NoError(t, s.Reload(ctx))
	close(release)
	require.Error(t, <-errCh)

	assert.True(t, flag(t, s, "k1").IsStarred)
}

func TestRemove_LastRecordOnPageLeavesPageNumber(t *testing.T) {
	ctx := context.Background()
	gw := newStub(21)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 2))

	require.NoError(t, s.Remove(ctx, "k21"))

	st := s.Snapshot()
	assert.Empty(t, st.Page.Mails)
	assert.Equal(t, 2, st.Page.Page)
	assert.Equal(t, 20, st.Page.Total)
	assert.Equal(t, 1, st.Page.TotalPages)
	assert.False(t, st.Page.PageInRange(st.Page.Page))
}

func TestOpen_MarksUnreadRecordRead(t *testing.T) {
	ctx := context.Background()
	gw := newStub(5)
	s := newStore(gw)
	require.NoError(t, s.Load(ctx, "", 1))

	rec, err := s.Open(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, rec.IsRead)
	assert.Equal(t, "message 2", rec.Subject)
	assert.Equal(t, 1, gw.count("read"))

	_, err = s.Open(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.count("read"), "already read; no second call")

	_, err = s.Open(ctx, "missing")
	require.ErrorIs(t, err, mailbox.ErrNotFound)
}

func TestStore_WritesThroughAndRestoresFromCache(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewTestCache(t)
	gw := newStub(45)

	s := mailbox.New(gw, c, 20, zerolog.Nop())
	require.NoError(t, s.Load(ctx, "me@example.com", 2))
	require.NoError(t, s.SetStarFlag(ctx, "k22", true))

	fresh := mailbox.New(gw, c, 20, zerolog.Nop())
	restored, err := fresh.Restore(ctx, "me@example.com", 2)
	require.NoError(t, err)
	require.True(t, restored)

	st := fresh.Snapshot()
	assert.False(t, st.Loaded, "restored state is not a server load")
	assert.Equal(t, 2, st.Page.Page)
	assert.Equal(t, 45, st.Page.Total)
	assert.Equal(t, 3, st.Page.TotalPages)
	require.Len(t, st.Page.Mails, 20)
	assert.Equal(t, "k21", st.Page.Mails[0].S3Key)
	assert.True(t, st.Page.Mails[1].IsStarred)
}

func TestRestore_DoesNotOverrideLoadedPage(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewTestCache(t)
	gw := newStub(45)

	s := mailbox.New(gw, c, 20, zerolog.Nop())
	require.NoError(t, s.Load(ctx, "", 1))
	require.NoError(t, s.Load(ctx, "", 2))

	restored, err := s.Restore(ctx, "", 1)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, 2, s.Snapshot().Page.Page)
}
