package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/dragonmail/internal/credential"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/store"
	"github.com/nhle/dragonmail/tests/testutil"
)

func backends(t *testing.T) map[string]*store.RecordStore {
	return map[string]*store.RecordStore{
		"sqlite": testutil.NewTestStore(t),
		"bolt":   testutil.NewBoltTestStore(t),
	}
}

func sampleAccount() model.Account {
	return model.Account{
		ID:        "acc-1",
		Address:   "abc@mail.tm",
		Password:  "pw",
		Username:  "abc",
		Token:     "tok",
		CreatedAt: 1_000,
		ExpiresAt: 301_000,
	}
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetAccount(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)

			acc := sampleAccount()
			require.NoError(t, s.SaveAccount(ctx, acc))

			got, err = s.GetAccount(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, acc, *got)

			require.NoError(t, s.ClearAccount(ctx))
			require.NoError(t, s.ClearAccount(ctx))
			got, err = s.GetAccount(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestSettings_DefaultsAndNormalization(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, model.DefaultSettings(), s.GetSettings(ctx))

			want := model.Settings{ExpirationMinutes: 3, PollingIntervalSeconds: 20}
			require.NoError(t, s.SaveSettings(ctx, want))
			assert.Equal(t, want, s.GetSettings(ctx))

			require.NoError(t, s.SaveSettings(ctx, model.Settings{ExpirationMinutes: 99, PollingIntervalSeconds: 20}))
			assert.Equal(t, model.Settings{
				ExpirationMinutes:      model.DefaultExpirationMinutes,
				PollingIntervalSeconds: 20,
			}, s.GetSettings(ctx))
		})
	}
}

func TestMalformedRecordsReadAsAbsent(t *testing.T) {
	ctx := context.Background()
	kv, err := store.NewBoltKV(filepath.Join(t.TempDir(), "bad.db"))
	require.NoError(t, err)
	s := store.NewRecordStore(kv)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, kv.Set(ctx, store.KeyAccount, []byte("{not json")))
	require.NoError(t, kv.Set(ctx, store.KeySettings, []byte("[]")))
	require.NoError(t, kv.Set(ctx, store.KeySavedEmails, []byte("42")))

	acc, err := s.GetAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, acc)

	assert.Equal(t, model.DefaultSettings(), s.GetSettings(ctx))

	emails, err := s.ListEmails(ctx)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestCustomDefaultSettings(t *testing.T) {
	custom := model.Settings{ExpirationMinutes: 10, PollingIntervalSeconds: 15}
	s := testutil.NewTestStore(t, store.WithDefaultSettings(custom))
	assert.Equal(t, custom, s.GetSettings(context.Background()))
}

func TestSavedEmails_PrependAndDeleteMiddle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, s.SaveEmail(ctx, model.SavedEmail{ID: id, Address: id + "@mail.tm"}))
			}

			emails, err := s.ListEmails(ctx)
			require.NoError(t, err)
			require.Len(t, emails, 3)
			assert.Equal(t, []string{"c", "b", "a"}, ids(emails))

			require.NoError(t, s.DeleteEmail(ctx, "b"))

			emails, err = s.ListEmails(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "a"}, ids(emails))
		})
	}
}

func TestSavedEmails_DuplicatesAllowed(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	e := model.SavedEmail{Address: "same@mail.tm"}
	require.NoError(t, s.SaveEmail(ctx, e))
	require.NoError(t, s.SaveEmail(ctx, e))

	emails, err := s.ListEmails(ctx)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.NotEmpty(t, emails[0].ID)
	assert.NotEqual(t, emails[0].ID, emails[1].ID)
}

func TestSecureStore_KeepsSecretsInVault(t *testing.T) {
	ctx := context.Background()
	inner := testutil.NewTestStore(t)
	ring := keyring.NewArrayKeyring(nil)
	s := store.NewSecureStore(inner, credential.New(ring))

	acc := sampleAccount()
	require.NoError(t, s.SaveAccount(ctx, acc))

	raw, err := inner.GetAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Empty(t, raw.Password)
	assert.Empty(t, raw.Token)

	got, err := s.GetAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc, *got)

	require.NoError(t, s.ClearAccount(ctx))
	keys, err := ring.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	got, err = s.GetAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(model.StorageConfig{Driver: "bolt", Path: filepath.Join(dir, "nested", "d.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = store.Open(model.StorageConfig{Driver: "redis", Path: filepath.Join(dir, "x.db")}, nil)
	assert.Error(t, err)

	_, err = store.Open(model.StorageConfig{Driver: "sqlite", Path: ":memory:", UseKeyring: true}, nil)
	assert.Error(t, err)
}

func TestSQLiteSchemaVersion(t *testing.T) {
	kv, err := store.NewSQLiteKV(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	v, err := kv.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func ids(emails []model.SavedEmail) []string {
	out := make([]string, len(emails))
	for i, e := range emails {
		out[i] = e.ID
	}
	return out
}
