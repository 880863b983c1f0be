package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/Tyrowin/flux/internal/config"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.DatabaseConfig{
		URL: filepath.Join(t.TempDir(), "flux.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createUser(t *testing.T, store *Store, name string) domain.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), domain.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		IsActive:     true,
	})
	require.NoError(t, err)
	return u
}

func TestRebind(t *testing.T) {
	req := require.New(t)
	req.Equal("SELECT ? FROM t WHERE a = ?", SQLite.Rebind("SELECT ? FROM t WHERE a = ?"))
	req.Equal("SELECT $1 FROM t WHERE a = $2", Postgres.Rebind("SELECT ? FROM t WHERE a = ?"))
}

func TestApplyMigrations_SkipsAlreadyApplied(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	migrations := fstest.MapFS{
		"extra/001_items.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE items(id INTEGER PRIMARY KEY);\nCREATE INDEX items_idx ON items(id);"),
		},
	}
	req.NoError(ApplyMigrations(ctx, store.db, SQLite, migrations, "extra"))
	req.NoError(ApplyMigrations(ctx, store.db, SQLite, migrations, "extra"))

	var count int
	req.NoError(store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = '001_items.sql'").Scan(&count))
	req.Equal(1, count)
}

func TestApplyMigrations_DoesNotRecordFailure(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	bad := fstest.MapFS{
		"bad/001_bad.sql": &fstest.MapFile{Data: []byte("CREAT table things(id INT);")},
	}
	req.Error(ApplyMigrations(ctx, store.db, SQLite, bad, "bad"))

	var count int
	req.NoError(store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = '001_bad.sql'").Scan(&count))
	req.Zero(count)
}

func TestCreateUser_DuplicateRejected(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")
	req.NotZero(alice.ID)
	req.Equal(string(domain.RoleMember), alice.Role)

	_, err := store.CreateUser(ctx, domain.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	req.ErrorIs(err, domain.ErrUsernameTaken)

	got, err := store.UserByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal(alice.ID, got.ID)
	req.True(got.IsActive)

	_, err = store.UserByUsername(ctx, "nobody")
	req.ErrorIs(err, domain.ErrUserNotFound)
}

func TestProfile_UpdateAndRead(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	p, err := store.ProfileByUsername(ctx, "alice")
	req.NoError(err)
	req.Empty(p.Bio)
	req.Nil(p.DateOfBirth)

	p.Bio = "hello"
	p.FirstName = "Alice"
	req.NoError(store.UpdateProfile(ctx, p))

	p, err = store.ProfileByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal("hello", p.Bio)
	req.Equal("Alice", p.FirstName)
	req.Equal(alice.ID, p.UserID)
}

func TestPosts_CRUD(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	first, err := store.CreatePost(ctx, alice.ID, "first", "body")
	req.NoError(err)
	req.Equal("alice", first.Username)
	second, err := store.CreatePost(ctx, alice.ID, "second", "body")
	req.NoError(err)

	posts, err := store.ListPosts(ctx, 10, 0)
	req.NoError(err)
	req.Len(posts, 2)
	req.Equal(second.ID, posts[0].ID)

	updated, err := store.UpdatePost(ctx, first.ID, "renamed", "body")
	req.NoError(err)
	req.Equal("renamed", updated.Title)

	req.NoError(store.DeletePost(ctx, first.ID))
	_, err = store.PostByID(ctx, first.ID)
	req.ErrorIs(err, domain.ErrPostNotFound)
	req.ErrorIs(store.DeletePost(ctx, first.ID), domain.ErrPostNotFound)
}

func TestChannels_CreatorIsAdmin(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	ch, err := store.CreateChannel(ctx, domain.Channel{Name: "General", IsPublic: true, CreatedBy: alice.ID})
	req.NoError(err)
	req.Equal("alice", ch.CreatedByName)
	req.True(ch.IsPublic)

	role, err := store.MemberRole(ctx, ch.ID, alice.ID)
	req.NoError(err)
	req.Equal(domain.RoleAdmin, role)

	_, err = store.GetChannel(ctx, ch.ID+100)
	req.ErrorIs(err, domain.ErrChannelNotFound)
}

func TestChannels_JoinAndLeave(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	ch, err := store.CreateChannel(ctx, domain.Channel{Name: "General", IsPublic: true, CreatedBy: alice.ID})
	req.NoError(err)

	req.NoError(store.AddMember(ctx, ch.ID, bob.ID, domain.RoleMember))
	req.ErrorIs(store.AddMember(ctx, ch.ID, bob.ID, domain.RoleMember), domain.ErrAlreadyMember)

	ok, err := store.IsMember(ctx, ch.ID, bob.ID)
	req.NoError(err)
	req.True(ok)

	members, err := store.Members(ctx, ch.ID)
	req.NoError(err)
	req.Len(members, 2)

	req.NoError(store.RemoveMember(ctx, ch.ID, bob.ID))
	req.ErrorIs(store.RemoveMember(ctx, ch.ID, bob.ID), domain.ErrNotMember)

	ok, err = store.IsMember(ctx, ch.ID, bob.ID)
	req.NoError(err)
	req.False(ok)
}

func TestChannels_SoleAdminCannotLeave(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	ch, err := store.CreateChannel(ctx, domain.Channel{Name: "General", IsPublic: true, CreatedBy: alice.ID})
	req.NoError(err)

	req.ErrorIs(store.RemoveMember(ctx, ch.ID, alice.ID), domain.ErrSoleAdmin)

	req.NoError(store.AddMember(ctx, ch.ID, bob.ID, domain.RoleAdmin))
	req.NoError(store.RemoveMember(ctx, ch.ID, alice.ID))
	req.ErrorIs(store.RemoveMember(ctx, ch.ID, bob.ID), domain.ErrSoleAdmin)
}

func TestChannels_ConcurrentAdminLeavesKeepOneAdmin(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	ch, err := store.CreateChannel(ctx, domain.Channel{Name: "General", IsPublic: true, CreatedBy: alice.ID})
	req.NoError(err)
	req.NoError(store.AddMember(ctx, ch.ID, bob.ID, domain.RoleAdmin))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{alice.ID, bob.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = store.RemoveMember(ctx, ch.ID, id)
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			req.ErrorIs(err, domain.ErrSoleAdmin)
			failed++
		}
	}
	req.Equal(1, failed)

	members, err := store.Members(ctx, ch.ID)
	req.NoError(err)
	req.Len(members, 1)
	req.Equal(domain.RoleAdmin, members[0].Role)
}

func TestChannels_Search(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	_, err := store.CreateChannel(ctx, domain.Channel{Name: "Go Lovers", IsPublic: true, CreatedBy: alice.ID})
	req.NoError(err)
	_, err = store.CreateChannel(ctx, domain.Channel{Name: "go secret", IsPublic: false, CreatedBy: alice.ID})
	req.NoError(err)

	forAlice, err := store.SearchChannels(ctx, alice.ID, "GO")
	req.NoError(err)
	req.Len(forAlice, 2)

	forBob, err := store.SearchChannels(ctx, bob.ID, "go")
	req.NoError(err)
	req.Len(forBob, 1)
	req.Equal("Go Lovers", forBob[0].Name)

	mine, err := store.ChannelsForUser(ctx, bob.ID)
	req.NoError(err)
	req.Empty(mine)
}

func TestMessages_OrderedByID(t *testing.T) {
	req := require.New(t)
	store := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, store, "alice")

	ch, err := store.CreateChannel(ctx, domain.Channel{Name: "General", IsPublic: true, CreatedBy: alice.ID})
	req.NoError(err)

	var last int64
	for _, content := range []string{"one", "two", "three"} {
		msg, err := store.CreateMessage(ctx, ch.ID, alice.ID, content)
		req.NoError(err)
		req.Greater(msg.ID, last)
		req.Equal("alice", msg.Username)
		last = msg.ID
	}

	history, err := store.Messages(ctx, ch.ID)
	req.NoError(err)
	req.Len(history, 3)
	req.Equal("one", history[0].Content)
	req.Equal("three", history[2].Content)
}
