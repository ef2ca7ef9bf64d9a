package session_test

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/session"
	"github.com/nhle/dragonmail/internal/store"
	"github.com/nhle/dragonmail/tests/testutil"
)

// mockProvider is a testify mock of session.Provider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateAccount(ctx context.Context) (mailtm.Credentials, error) {
	args := m.Called(ctx)
	return args.Get(0).(mailtm.Credentials), args.Error(1)
}

func (m *mockProvider) Authenticate(ctx context.Context, address, password string) (string, error) {
	args := m.Called(ctx, address, password)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) SetCredentials(address, password string) {
	m.Called(address, password)
}

func (m *mockProvider) Token() string {
	return m.Called().String(0)
}

func (m *mockProvider) Messages(ctx context.Context) ([]model.Message, error) {
	args := m.Called(ctx)
	msgs, _ := args.Get(0).([]model.Message)
	return msgs, args.Error(1)
}

func (m *mockProvider) Message(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*model.Message)
	return msg, args.Error(1)
}

func (m *mockProvider) Source(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}

func (m *mockProvider) Limits(ctx context.Context) model.APILimits {
	return m.Called(ctx).Get(0).(model.APILimits)
}

func (m *mockProvider) DeleteAccount(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}

func (m *mockProvider) Clear() {
	m.Called()
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  gosync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func creds(n int) mailtm.Credentials {
	return mailtm.Credentials{
		ID:       fmt.Sprintf("acc-%d", n),
		Address:  fmt.Sprintf("user%d@mail.tm", n),
		Password: fmt.Sprintf("pw-%d", n),
	}
}

type fixture struct {
	provider *mockProvider
	store    *store.RecordStore
	clock    *fakeClock
	manager  *session.Manager
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()

	f := &fixture{
		provider: &mockProvider{},
		store:    testutil.NewTestStore(t),
		clock:    newFakeClock(),
	}
	f.provider.On("Limits", mock.Anything).Return(model.DefaultAPILimits(f.clock.Now())).Maybe()
	f.provider.On("Clear").Return().Maybe()

	// The countdown is driven by Tick in tests.
	opts = append([]session.Option{
		session.WithClock(f.clock.Now),
		session.WithTickInterval(time.Hour),
	}, opts...)
	f.manager = session.NewManager(f.provider, f.store, opts...)
	t.Cleanup(f.manager.Shutdown)
	return f
}

// expectGenerate wires one successful CreateAccount + Authenticate.
func (f *fixture) expectGenerate(c mailtm.Credentials, token string) *mock.Call {
	call := f.provider.On("CreateAccount", mock.Anything).Return(c, nil).Once()
	f.provider.On("Authenticate", mock.Anything, c.Address, c.Password).Return(token, nil).Once()
	f.provider.On("Token").Return(token).Once()
	return call
}

func TestGenerateEmail_ExpiryFollowsSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for minutes := model.MinExpirationMinutes; minutes <= model.MaxExpirationMinutes; minutes++ {
		require.NoError(t, f.manager.UpdateSettings(ctx, model.Settings{
			ExpirationMinutes:      minutes,
			PollingIntervalSeconds: 10,
		}))

		f.expectGenerate(creds(minutes), "tok")
		acc, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(minutes)*60000, acc.ExpiresAt-acc.CreatedAt, "minutes=%d", minutes)
		assert.Equal(t, f.clock.Now().UnixMilli(), acc.CreatedAt)
	}

	f.provider.AssertExpectations(t)
}

func TestGenerateEmail_PopulatesAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expectGenerate(creds(1), "abc")

	acc, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, "user1@mail.tm", acc.Address)
	assert.Equal(t, "user1", acc.Username)
	assert.Equal(t, "pw-1", acc.Password)
	assert.Equal(t, "abc", acc.Token)

	st := f.manager.State()
	assert.True(t, st.Active())
	assert.Equal(t, session.PhaseActive, st.Phase)
	assert.Empty(t, st.Messages)
	assert.False(t, st.IsLoading)
	assert.Equal(t, 5*time.Minute, st.TimeRemaining)

	stored, err := f.store.GetAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, *acc, *stored)
}

func TestGenerateEmail_TearsDownBeforeCreating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.expectGenerate(creds(1), "tok-1")
	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	var storedDuring *model.Account
	var activeDuring bool
	f.expectGenerate(creds(2), "tok-2").Run(func(mock.Arguments) {
		storedDuring, _ = f.store.GetAccount(ctx)
		activeDuring = f.manager.State().Account != nil
	})

	acc, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	assert.Nil(t, storedDuring, "previous account must be cleared before the new one is created")
	assert.False(t, activeDuring)
	assert.Equal(t, "user2@mail.tm", acc.Address)
	f.provider.AssertCalled(t, "Clear")
}

func TestGenerateEmail_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("create fails", func(t *testing.T) {
		f := newFixture(t)
		boom := &mailtm.AccountCreationError{Err: errors.New("boom")}
		f.provider.On("CreateAccount", mock.Anything).Return(mailtm.Credentials{}, boom).Once()

		_, err := f.manager.GenerateEmail(ctx)
		require.Error(t, err)

		st := f.manager.State()
		assert.Nil(t, st.Account)
		assert.Equal(t, session.PhaseIdle, st.Phase)
		assert.ErrorIs(t, st.Err, boom)
		f.provider.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("authenticate fails", func(t *testing.T) {
		f := newFixture(t)
		c := creds(1)
		f.provider.On("CreateAccount", mock.Anything).Return(c, nil).Once()
		f.provider.On("Authenticate", mock.Anything, c.Address, c.Password).
			Return("", &mailtm.AuthError{Address: c.Address, Message: "Invalid credentials."}).Once()

		_, err := f.manager.GenerateEmail(ctx)
		require.Error(t, err)
		assert.True(t, mailtm.IsAuthError(err))

		st := f.manager.State()
		assert.Nil(t, st.Account)
		assert.False(t, st.IsLoading)

		stored, err := f.store.GetAccount(ctx)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("empty token", func(t *testing.T) {
		f := newFixture(t)
		c := creds(1)
		f.provider.On("CreateAccount", mock.Anything).Return(c, nil).Once()
		f.provider.On("Authenticate", mock.Anything, c.Address, c.Password).Return("", nil).Once()
		f.provider.On("Token").Return("").Once()

		_, err := f.manager.GenerateEmail(ctx)
		require.Error(t, err)
		assert.Nil(t, f.manager.State().Account)
	})
}

func TestGenerateEmail_Busy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	f.expectGenerate(creds(1), "tok").Run(func(mock.Arguments) {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.GenerateEmail(ctx)
		done <- err
	}()

	<-entered
	assert.Equal(t, session.PhaseCreating, f.manager.State().Phase)

	_, err := f.manager.GenerateEmail(ctx)
	assert.ErrorIs(t, err, session.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	f.provider.AssertNumberOfCalls(t, "CreateAccount", 1)
}

func TestClearSession_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expectGenerate(creds(1), "tok")

	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	f.manager.ClearSession(ctx)
	first := f.manager.State()
	f.manager.ClearSession(ctx)
	second := f.manager.State()

	for _, st := range []session.State{first, second} {
		assert.Nil(t, st.Account)
		assert.Empty(t, st.Messages)
		assert.Nil(t, st.SelectedMessage)
		assert.Equal(t, time.Duration(0), st.TimeRemaining)
		assert.Equal(t, session.PhaseIdle, st.Phase)
	}

	stored, err := f.store.GetAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClearSession_CancelledContextStillClearsStore(t *testing.T) {
	f := newFixture(t)
	f.expectGenerate(creds(1), "tok")

	_, err := f.manager.GenerateEmail(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.manager.ClearSession(ctx)

	assert.Nil(t, f.manager.State().Account)
	stored, err := f.store.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUpdateSiteUsedFor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.manager.UpdateSiteUsedFor(ctx, "github.com"), session.ErrNoAccount)

	f.expectGenerate(creds(1), "tok")
	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	require.NoError(t, f.manager.UpdateSiteUsedFor(ctx, "github.com"))
	assert.Equal(t, "github.com", f.manager.State().Account.SiteUsedFor)

	stored, err := f.store.GetAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "github.com", stored.SiteUsedFor)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes remotely then tears down", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.UpdateSettings(ctx, model.Settings{ExpirationMinutes: 1, PollingIntervalSeconds: 10}))
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.clock.Advance(59 * time.Second)
		f.manager.Tick()
		st := f.manager.State()
		require.True(t, st.Active())
		assert.Equal(t, time.Second, st.TimeRemaining)

		f.provider.On("DeleteAccount", mock.Anything, "user1@mail.tm").Return(nil).Once()
		f.clock.Advance(time.Second)
		f.manager.Tick()

		st = f.manager.State()
		assert.Nil(t, st.Account)
		assert.Equal(t, session.PhaseIdle, st.Phase)
		f.provider.AssertCalled(t, "DeleteAccount", mock.Anything, "user1@mail.tm")

		stored, err := f.store.GetAccount(ctx)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("remote delete failure still tears down", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.provider.On("DeleteAccount", mock.Anything, "user1@mail.tm").
			Return(&mailtm.TransientError{Method: "DELETE", Path: "/accounts/acc-1", Status: 503, Err: errors.New("down")}).Once()
		f.clock.Advance(5 * time.Minute)
		f.manager.Tick()

		assert.Nil(t, f.manager.State().Account)
	})

	t.Run("local only", func(t *testing.T) {
		f := newFixture(t, session.WithDeleteOnExpiry(false))
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		f.manager.Tick()

		assert.Nil(t, f.manager.State().Account)
		f.provider.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
	})
}

func TestScenario_GenerateFetchViewAndShortenExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expectGenerate(creds(1), "abc")

	acc, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", acc.Token)

	listing := []model.Message{
		{ID: "m1", Subject: "Welcome", From: model.Address{Address: "hi@example.com"}},
		{ID: "m2", Subject: "Verify", From: model.Address{Address: "no-reply@example.com"}},
	}
	f.provider.On("Messages", mock.Anything).Return(listing, nil).Once()

	msgs, err := f.manager.FetchMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	detail := &model.Message{ID: "m2", Subject: "Verify", Text: "Your code is 1234", HTML: []string{"<p>Your code is <b>1234</b></p>"}}
	f.provider.On("Message", mock.Anything, "m2").Return(detail, nil).Once()

	got, err := f.manager.ViewMessage(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "Your code is 1234", got.Text)

	st := f.manager.State()
	require.NotNil(t, st.SelectedMessage)
	assert.Equal(t, "m2", st.SelectedMessage.ID)
	assert.Len(t, st.Messages, 2)
	assert.False(t, st.IsViewing)

	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.manager.UpdateSettings(ctx, model.Settings{ExpirationMinutes: 1, PollingIntervalSeconds: 10}))

	st = f.manager.State()
	assert.Equal(t, acc.CreatedAt+60000, st.Account.ExpiresAt)
	assert.Equal(t, 50*time.Second, st.TimeRemaining)

	stored, err := f.store.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, acc.CreatedAt+60000, stored.ExpiresAt)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects out of bounds", func(t *testing.T) {
		f := newFixture(t)
		err := f.manager.UpdateSettings(ctx, model.Settings{ExpirationMinutes: 11, PollingIntervalSeconds: 10})
		assert.ErrorIs(t, err, session.ErrInvalidSettings)
		assert.Equal(t, model.DefaultSettings(), f.manager.Settings())
	})

	t.Run("keeps expiry when recomputed one is past", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		acc, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.clock.Advance(3 * time.Minute)
		want := model.Settings{ExpirationMinutes: 1, PollingIntervalSeconds: 20}
		require.NoError(t, f.manager.UpdateSettings(ctx, want))

		assert.Equal(t, acc.ExpiresAt, f.manager.State().Account.ExpiresAt)
		assert.Equal(t, want, f.manager.Settings())
		assert.Equal(t, want, f.store.GetSettings(ctx))
	})

	t.Run("applies polling interval when expiry is kept", func(t *testing.T) {
		f := newFixture(t, session.WithDefaultSettings(model.Settings{ExpirationMinutes: 5, PollingIntervalSeconds: 30}))
		f.provider.On("Messages", mock.Anything).Return([]model.Message{}, nil).Maybe()
		f.expectGenerate(creds(1), "tok")
		acc, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)
		require.Equal(t, 30*time.Second, f.manager.State().Sync.Interval)

		f.clock.Advance(90 * time.Second)
		require.NoError(t, f.manager.UpdateSettings(ctx, model.Settings{ExpirationMinutes: 1, PollingIntervalSeconds: 5}))

		st := f.manager.State()
		require.NotNil(t, st.Account)
		assert.Equal(t, acc.ExpiresAt, st.Account.ExpiresAt)
		assert.Equal(t, session.PhaseActive, st.Phase)
		assert.Equal(t, 5*time.Second, st.Sync.Interval)
	})
}

func TestDeleteActiveAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("no account", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.manager.DeleteActiveAccount(ctx), session.ErrNoAccount)
	})

	t.Run("not found counts as success", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.provider.On("DeleteAccount", mock.Anything, "user1@mail.tm").
			Return(&mailtm.APIError{Method: "DELETE", Path: "/accounts/acc-1", Status: 404}).Once()

		require.NoError(t, f.manager.DeleteActiveAccount(ctx))
		assert.Nil(t, f.manager.State().Account)
	})

	t.Run("failure keeps the session", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		cause := &mailtm.TransientError{Method: "DELETE", Path: "/accounts/acc-1", Status: 500, Err: errors.New("oops")}
		f.provider.On("DeleteAccount", mock.Anything, "user1@mail.tm").Return(cause).Once()

		err = f.manager.DeleteActiveAccount(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "try again")

		st := f.manager.State()
		assert.True(t, st.Active())
		assert.ErrorIs(t, st.Err, cause)
	})
}

func TestFetchMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("no account", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.FetchMessages(ctx)
		assert.ErrorIs(t, err, session.ErrNoAccount)
	})

	t.Run("gone account clears the session", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.provider.On("Messages", mock.Anything).
			Return(nil, &mailtm.AuthError{Message: "This account no longer exists", Gone: true}).Once()

		msgs, err := f.manager.FetchMessages(ctx)
		assert.NoError(t, err)
		assert.Nil(t, msgs)
		assert.Nil(t, f.manager.State().Account)
	})

	t.Run("failure is reported and keeps the list", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		f.provider.On("Messages", mock.Anything).Return([]model.Message{{ID: "m1"}}, nil).Once()
		_, err = f.manager.FetchMessages(ctx)
		require.NoError(t, err)

		cause := &mailtm.TransientError{Method: "GET", Path: "/messages", Status: 502, Err: errors.New("bad gateway")}
		f.provider.On("Messages", mock.Anything).Return(nil, cause).Once()
		_, err = f.manager.FetchMessages(ctx)
		assert.ErrorIs(t, err, cause)

		st := f.manager.State()
		assert.Len(t, st.Messages, 1)
		assert.ErrorIs(t, st.Err, cause)
		assert.False(t, st.IsLoading)
	})

	t.Run("result after clear is discarded", func(t *testing.T) {
		f := newFixture(t)
		f.expectGenerate(creds(1), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		entered := make(chan struct{})
		release := make(chan struct{})
		f.provider.On("Messages", mock.Anything).Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).Return([]model.Message{{ID: "late"}}, nil).Once()

		done := make(chan error, 1)
		go func() {
			_, err := f.manager.FetchMessages(ctx)
			done <- err
		}()

		<-entered
		f.manager.ClearSession(ctx)
		close(release)

		assert.ErrorIs(t, <-done, session.ErrStale)
		assert.Empty(t, f.manager.State().Messages)
	})
}

func TestRefreshMessages_DropsOverlappingCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expectGenerate(creds(1), "tok")
	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.provider.On("Messages", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return([]model.Message{}, nil).Once()

	done := make(chan error, 1)
	go func() { done <- f.manager.RefreshMessages(ctx) }()

	<-entered
	assert.NoError(t, f.manager.RefreshMessages(ctx))
	close(release)
	require.NoError(t, <-done)

	f.provider.AssertNumberOfCalls(t, "Messages", 1)
}

func TestViewMessage_FailureLeavesListAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expectGenerate(creds(1), "tok")
	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	f.provider.On("Messages", mock.Anything).Return([]model.Message{{ID: "m1"}, {ID: "m2"}}, nil).Once()
	_, err = f.manager.FetchMessages(ctx)
	require.NoError(t, err)

	cause := &mailtm.APIError{Method: "GET", Path: "/messages/m9", Status: 404}
	f.provider.On("Message", mock.Anything, "m9").Return(nil, cause).Once()

	_, err = f.manager.ViewMessage(ctx, "m9")
	assert.ErrorIs(t, err, mailtm.ErrNotFound)

	st := f.manager.State()
	assert.Len(t, st.Messages, 2)
	assert.Nil(t, st.Err)
	assert.ErrorIs(t, st.ViewErr, cause)
	assert.False(t, st.IsViewing)
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expectGenerate(creds(1), "tok")
	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	raw := "Content-Type: multipart/mixed; boundary=XX\r\n" +
		"\r\n" +
		"--XX\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--XX\r\n" +
		"Content-Type: text/csv\r\n" +
		"Content-Disposition: attachment; filename=\"report.csv\"\r\n" +
		"\r\n" +
		"a,b\r\n" +
		"--XX--\r\n"
	f.provider.On("Source", mock.Anything, "m1").Return([]byte(raw), nil).Once()

	atts, err := f.manager.Attachments(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "report.csv", atts[0].Filename)
}

func TestSavedEmails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.manager.SaveActiveAccount(ctx)
	assert.ErrorIs(t, err, session.ErrNoAccount)

	var ids []string
	for i := 1; i <= 3; i++ {
		f.expectGenerate(creds(i), "tok")
		_, err := f.manager.GenerateEmail(ctx)
		require.NoError(t, err)

		saved, err := f.manager.SaveActiveAccount(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("user%d@mail.tm", i), saved.Address)
		assert.Equal(t, fmt.Sprintf("pw-%d", i), saved.Password)
		ids = append(ids, saved.ID)
	}

	require.NoError(t, f.manager.DeleteSavedEmail(ctx, ids[1]))

	list, err := f.manager.SavedEmails(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "user3@mail.tm", list[0].Address)
	assert.Equal(t, "user1@mail.tm", list[1].Address)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	stored := func(f *fixture, expiresIn time.Duration) model.Account {
		now := f.clock.Now().UnixMilli()
		acc := model.Account{
			ID:        "acc-9",
			Address:   "kept@mail.tm",
			Password:  "pw",
			Username:  "kept",
			Token:     "old",
			CreatedAt: now - 60000,
			ExpiresAt: now + expiresIn.Milliseconds(),
		}
		require.NoError(t, f.store.SaveAccount(ctx, acc))
		return acc
	}

	t.Run("empty store", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.Restore(ctx))
		assert.Nil(t, f.manager.State().Account)
	})

	t.Run("unexpired account is re-authenticated", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.SaveSettings(ctx, model.Settings{ExpirationMinutes: 7, PollingIntervalSeconds: 15}))
		acc := stored(f, 2*time.Minute)

		f.provider.On("SetCredentials", acc.Address, acc.Password).Return().Once()
		f.provider.On("Authenticate", mock.Anything, acc.Address, acc.Password).Return("fresh", nil).Once()

		require.NoError(t, f.manager.Restore(ctx))

		st := f.manager.State()
		require.True(t, st.Active())
		assert.Equal(t, "fresh", st.Account.Token)
		assert.Equal(t, acc.ExpiresAt, st.Account.ExpiresAt)
		assert.Equal(t, 2*time.Minute, st.TimeRemaining)
		assert.Equal(t, 7, st.Settings.ExpirationMinutes)
	})

	t.Run("expired account is cleared", func(t *testing.T) {
		f := newFixture(t)
		stored(f, -time.Second)

		require.NoError(t, f.manager.Restore(ctx))

		assert.Nil(t, f.manager.State().Account)
		got, err := f.store.GetAccount(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
		f.provider.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed authentication clears", func(t *testing.T) {
		f := newFixture(t)
		acc := stored(f, time.Minute)

		f.provider.On("SetCredentials", acc.Address, acc.Password).Return().Once()
		f.provider.On("Authenticate", mock.Anything, acc.Address, acc.Password).
			Return("", &mailtm.AuthError{Address: acc.Address, Message: "gone", Gone: true}).Once()

		err := f.manager.Restore(ctx)
		require.Error(t, err)
		assert.True(t, mailtm.IsAccountGone(err))
		assert.Nil(t, f.manager.State().Account)

		got, err := f.store.GetAccount(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSubscribe_DeliversLatestState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	updates, cancel := f.manager.Subscribe()
	defer cancel()

	f.expectGenerate(creds(1), "tok")
	_, err := f.manager.GenerateEmail(ctx)
	require.NoError(t, err)

	select {
	case st := <-updates:
		require.NotNil(t, st.Account)
		assert.Equal(t, "user1@mail.tm", st.Account.Address)
	case <-time.After(time.Second):
		t.Fatal("no state published")
	}

	cancel()
	cancel()
	_, ok := <-updates
	assert.False(t, ok)
}
