package skald_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skald/pkg/dbstore"
	"github.com/sre-norns/skald/pkg/skald"
	"github.com/sre-norns/skald/pkg/trust"
)

func newTestService(t *testing.T) (skald.Service, skald.Store) {
	t.Helper()

	db, err := dbstore.Open(filepath.Join(t.TempDir(), "skald-test.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&skald.Account{}, &skald.Post{}, &skald.Lead{}))

	store := dbstore.NewDbStore(db)
	resolver := trust.NewResolver("unit-test-secret", time.Hour, log.NewNopLogger())

	return skald.NewService(store, resolver, log.NewNopLogger()), store
}

func identity(id skald.ResourceID, role string) trust.Context {
	return trust.Context{Identity: &trust.Identity{ID: string(id), Role: role}}
}

func registerAccount(t *testing.T, srv skald.Service, email string) skald.Account {
	t.Helper()

	auth, err := srv.Accounts().Register(context.Background(), skald.CreateAccountRequest{
		Name:     "Test Author",
		Email:    email,
		Password: "hunter2!",
	})
	require.NoError(t, err)

	return auth.Account
}

func createPost(t *testing.T, srv skald.Service, tc trust.Context, entry skald.CreatePostRequest) skald.Post {
	t.Helper()

	post, err := srv.Posts().Create(context.Background(), tc, entry)
	require.NoError(t, err)

	return post
}

//------------------------------
// Accounts
//------------------------------

func TestAccounts_RegisterHashesPassword(t *testing.T) {
	srv, store := newTestService(t)
	ctx := context.Background()

	auth, err := srv.Accounts().Register(ctx, skald.CreateAccountRequest{
		Name:     "Brynhild",
		Email:    "brynhild@example.com",
		Password: "valkyrie-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, auth.Token)
	require.NotEmpty(t, auth.Account.ID)
	require.Equal(t, skald.RoleUser, auth.Account.Role)
	require.True(t, auth.Account.IsActive)

	var stored skald.Account
	ok, err := store.Get(ctx, &stored, auth.Account.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, "valkyrie-pass", stored.Password, "password must be stored as a hash")
}

func TestAccounts_RegisterValidation(t *testing.T) {
	srv, _ := newTestService(t)

	testCases := map[string]skald.CreateAccountRequest{
		"missing-name":     {Email: "a@example.com", Password: "pass"},
		"malformed-email":  {Name: "A", Email: "not-an-email", Password: "pass"},
		"missing-password": {Name: "A", Email: "a@example.com"},
		"unknown-role":     {Name: "A", Email: "a@example.com", Password: "pass", Role: "root"},
	}

	for name, entry := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := srv.Accounts().Register(context.Background(), entry)
			require.Error(t, err)
			require.Equal(t, skald.KindValidation, skald.KindOf(err))
		})
	}
}

func TestAccounts_RegisterDuplicateEmail(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	first := registerAccount(t, srv, "shared@example.com")

	_, err := srv.Accounts().Register(ctx, skald.CreateAccountRequest{
		Name:     "Impostor",
		Email:    "shared@example.com",
		Password: "other-pass",
	})
	require.Error(t, err)
	require.Equal(t, skald.KindValidation, skald.KindOf(err))

	// The original registration survives the rejected attempt
	kept, err := srv.Accounts().Get(ctx, identity(first.ID, skald.RoleUser), first.ID)
	require.NoError(t, err)
	require.Equal(t, "Test Author", kept.Name)
}

func TestAccounts_LoginRoundTrip(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	account := registerAccount(t, srv, "login@example.com")

	auth, err := srv.Accounts().Login(ctx, skald.LoginRequest{Email: "login@example.com", Password: "hunter2!"})
	require.NoError(t, err)
	require.Equal(t, account.ID, auth.Account.ID)

	resolver := trust.NewResolver("unit-test-secret", time.Hour, log.NewNopLogger())
	tc := resolver.Resolve(auth.Token)
	require.False(t, tc.Anonymous())
	require.Equal(t, string(account.ID), tc.Identity.ID)
	require.Equal(t, "login@example.com", tc.Identity.Email)
}

func TestAccounts_LoginRejections(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	account := registerAccount(t, srv, "guarded@example.com")

	_, err := srv.Accounts().Login(ctx, skald.LoginRequest{Email: "guarded@example.com", Password: "wrong"})
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))

	_, err = srv.Accounts().Login(ctx, skald.LoginRequest{Email: "nobody@example.com", Password: "hunter2!"})
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))

	// Deactivated accounts hold their password but cannot sign in
	inactive := false
	_, err = srv.Accounts().Update(ctx, identity(account.ID, skald.RoleAdmin), account.ID,
		skald.UpdateAccountRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = srv.Accounts().Login(ctx, skald.LoginRequest{Email: "guarded@example.com", Password: "hunter2!"})
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))
}

func TestAccounts_ReadsRequireIdentity(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	account := registerAccount(t, srv, "private@example.com")

	_, err := srv.Accounts().List(ctx, trust.Anonymous, skald.Pagination{})
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))

	_, err = srv.Accounts().Get(ctx, trust.Anonymous, account.ID)
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))

	page, err := srv.Accounts().List(ctx, identity(account.ID, skald.RoleUser), skald.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
}

func TestAccounts_UpdateOwnershipRules(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	owner := registerAccount(t, srv, "owner@example.com")
	other := registerAccount(t, srv, "other@example.com")

	name := "Renamed"
	_, err := srv.Accounts().Update(ctx, identity(other.ID, skald.RoleUser), owner.ID,
		skald.UpdateAccountRequest{Name: &name})
	require.Equal(t, skald.KindForbidden, skald.KindOf(err))

	updated, err := srv.Accounts().Update(ctx, identity(owner.ID, skald.RoleUser), owner.ID,
		skald.UpdateAccountRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, owner.Email, updated.Email, "untouched fields keep their values")

	// Admins may update anyone
	age := 33
	updated, err = srv.Accounts().Update(ctx, identity(other.ID, skald.RoleAdmin), owner.ID,
		skald.UpdateAccountRequest{Age: &age})
	require.NoError(t, err)
	require.Equal(t, 33, updated.Age)
	require.Equal(t, "Renamed", updated.Name)
}

func TestAccounts_DeleteRequiresAdmin(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	victim := registerAccount(t, srv, "victim@example.com")
	caller := registerAccount(t, srv, "caller@example.com")

	_, err := srv.Accounts().Delete(ctx, identity(caller.ID, skald.RoleUser), victim.ID)
	require.Equal(t, skald.KindForbidden, skald.KindOf(err))

	ok, err := srv.Accounts().Delete(ctx, identity(caller.ID, skald.RoleAdmin), victim.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = srv.Accounts().Delete(ctx, identity(caller.ID, skald.RoleAdmin), victim.ID)
	require.Equal(t, skald.KindNotFound, skald.KindOf(err))
}

//------------------------------
// Posts
//------------------------------

func TestPosts_CreateRequiresIdentityAndAuthor(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "author@example.com")
	entry := skald.CreatePostRequest{
		Title:    "A valid title",
		Content:  "Body long enough to pass validation",
		AuthorID: author.ID,
	}

	_, err := srv.Posts().Create(ctx, trust.Anonymous, entry)
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))

	missingAuthor := entry
	missingAuthor.AuthorID = "no-such-account"
	_, err = srv.Posts().Create(ctx, identity(author.ID, skald.RoleUser), missingAuthor)
	require.Equal(t, skald.KindValidation, skald.KindOf(err))

	post, err := srv.Posts().Create(ctx, identity(author.ID, skald.RoleUser), entry)
	require.NoError(t, err)
	require.NotEmpty(t, post.ID)
	require.True(t, post.Published, "posts default to published")
}

func TestPosts_ContentValidation(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "strict@example.com")
	tc := identity(author.ID, skald.RoleUser)

	testCases := map[string]struct {
		title   string
		content string
	}{
		"short-title":  {title: "ab", content: "Body long enough to pass"},
		"long-title":   {title: makeString(201), content: "Body long enough to pass"},
		"short-body":   {title: "A valid title", content: "tiny"},
		"massive-body": {title: "A valid title", content: makeString(5001)},
	}

	for name, tc2 := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := srv.Posts().Create(ctx, tc, skald.CreatePostRequest{
				Title:    tc2.title,
				Content:  tc2.content,
				AuthorID: author.ID,
			})
			require.Equal(t, skald.KindValidation, skald.KindOf(err))
		})
	}
}

func makeString(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'x'
	}
	return string(out)
}

func TestPosts_ListPagination(t *testing.T) {
	srv, store := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "paging@example.com")
	base := time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		post := skald.Post{
			ResourceMeta: skald.ResourceMeta{CreatedAt: base.Add(time.Duration(i) * time.Hour)},
			Title:        fmt.Sprintf("Entry %d", i),
			Content:      "Pagination fixture content",
			AuthorID:     author.ID,
		}
		require.NoError(t, store.Create(ctx, &post))
	}

	page, err := srv.Posts().List(ctx, skald.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.EqualValues(t, 3, page.Total)
	require.True(t, page.HasMore)
	require.Equal(t, "Entry 2", page.Items[0].Title, "newest entries come first")

	rest, err := srv.Posts().List(ctx, skald.Pagination{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	require.EqualValues(t, 3, rest.Total)
	require.False(t, rest.HasMore)
}

func TestPosts_PaginationWindowInvariant(t *testing.T) {
	srv, store := newTestService(t)
	ctx := context.Background()

	const total = 5
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < total; i++ {
		post := skald.Post{
			ResourceMeta: skald.ResourceMeta{CreatedAt: base.Add(time.Duration(i) * time.Minute)},
			Title:        "Window fixture",
			Content:      "Window fixture content",
			AuthorID:     "a1",
		}
		require.NoError(t, store.Create(ctx, &post))
	}

	for _, limit := range []uint{1, 2, 5, 10} {
		for _, offset := range []uint{0, 2, 5, 7} {
			page, err := srv.Posts().List(ctx, skald.Pagination{Limit: limit, Offset: offset})
			require.NoError(t, err)

			want := total - int(offset)
			if want < 0 {
				want = 0
			}
			if want > int(limit) {
				want = int(limit)
			}
			require.Len(t, page.Items, want, "limit=%d offset=%d", limit, offset)
			require.EqualValues(t, total, page.Total)
			require.Equal(t, int(offset)+int(limit) < total, page.HasMore)
		}
	}
}

func TestPosts_PartialUpdate(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "editor@example.com")
	tc := identity(author.ID, skald.RoleUser)

	published := false
	post := createPost(t, srv, tc, skald.CreatePostRequest{
		Title:     "Original title",
		Content:   "Original content of the entry",
		AuthorID:  author.ID,
		Published: &published,
		Tags:      skald.StringList{"draft", "infra"},
	})

	title := "Updated title"
	updated, err := srv.Posts().Update(ctx, tc, post.ID, skald.UpdatePostRequest{Title: &title})
	require.NoError(t, err)

	require.Equal(t, "Updated title", updated.Title)
	require.Equal(t, post.Content, updated.Content)
	require.Equal(t, post.AuthorID, updated.AuthorID)
	require.False(t, updated.Published)
	require.Equal(t, post.Tags, updated.Tags)
	require.Equal(t, post.ID, updated.ID)
}

func TestPosts_EmptyUpdateIsARead(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "noop@example.com")
	tc := identity(author.ID, skald.RoleUser)
	post := createPost(t, srv, tc, skald.CreatePostRequest{
		Title:    "Untouched",
		Content:  "Nothing changes in this one",
		AuthorID: author.ID,
	})

	updated, err := srv.Posts().Update(ctx, tc, post.ID, skald.UpdatePostRequest{})
	require.NoError(t, err)
	require.Equal(t, post.Title, updated.Title)
	require.Equal(t, post.UpdatedAt.Unix(), updated.UpdatedAt.Unix())
}

func TestPosts_UpdateMissing(t *testing.T) {
	srv, _ := newTestService(t)

	author := registerAccount(t, srv, "ghost@example.com")
	title := "Does not matter"
	_, err := srv.Posts().Update(context.Background(), identity(author.ID, skald.RoleUser),
		"no-such-post", skald.UpdatePostRequest{Title: &title})
	require.Equal(t, skald.KindNotFound, skald.KindOf(err))
}

func TestPosts_DeleteIsNotIdempotent(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "deleter@example.com")
	tc := identity(author.ID, skald.RoleUser)
	post := createPost(t, srv, tc, skald.CreatePostRequest{
		Title:    "Short lived",
		Content:  "This entry is deleted right away",
		AuthorID: author.ID,
	})

	ok, err := srv.Posts().Delete(ctx, tc, post.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = srv.Posts().Delete(ctx, tc, post.ID)
	require.Equal(t, skald.KindNotFound, skald.KindOf(err))

	_, err = srv.Posts().Get(ctx, post.ID)
	require.Equal(t, skald.KindNotFound, skald.KindOf(err))
}

func TestPosts_PublishFlipsOnlyPublished(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "publisher@example.com")
	tc := identity(author.ID, skald.RoleUser)

	draft := false
	post := createPost(t, srv, tc, skald.CreatePostRequest{
		Title:     "Held back",
		Content:   "Waits for an explicit publish",
		AuthorID:  author.ID,
		Published: &draft,
	})
	require.False(t, post.Published)

	published, err := srv.Posts().Publish(ctx, tc, post.ID)
	require.NoError(t, err)
	require.True(t, published.Published)
	require.Equal(t, post.Title, published.Title)
	require.Equal(t, post.Content, published.Content)

	_, err = srv.Posts().Publish(ctx, trust.Anonymous, post.ID)
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))
}

func TestPosts_ListVariants(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	alice := registerAccount(t, srv, "alice@example.com")
	bob := registerAccount(t, srv, "bob@example.com")
	tc := identity(alice.ID, skald.RoleUser)

	draft := false
	createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Alice published", Content: "A published entry by alice", AuthorID: alice.ID,
	})
	createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Alice draft", Content: "A draft entry by alice", AuthorID: alice.ID, Published: &draft,
	})
	createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Bob published", Content: "A published entry by bob", AuthorID: bob.ID,
	})

	byAlice, err := srv.Posts().ListByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, byAlice, 2)

	publishedOnly, err := srv.Posts().ListPublished(ctx)
	require.NoError(t, err)
	require.Len(t, publishedOnly, 2)
	for _, post := range publishedOnly {
		require.True(t, post.Published)
	}
}

func TestPosts_Search(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "searcher@example.com")
	tc := identity(author.ID, skald.RoleUser)

	createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Concurrency primer", Content: "Channels and goroutines explained", AuthorID: author.ID,
	})
	createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Plain entry", Content: "This body mentions concurrency once", AuthorID: author.ID,
	})
	createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Off topic", Content: "Gardening notes for the season", AuthorID: author.ID,
	})

	matches, err := srv.Posts().Search(ctx, "concurrency")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	none, err := srv.Posts().Search(ctx, "no-such-term")
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = srv.Posts().Search(ctx, "")
	require.Equal(t, skald.KindValidation, skald.KindOf(err))
}

func TestPosts_SearchIsCapped(t *testing.T) {
	srv, store := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		post := skald.Post{
			Title:    fmt.Sprintf("Capped entry %d", i),
			Content:  "All of these share the capped keyword",
			AuthorID: "a1",
		}
		require.NoError(t, store.Create(ctx, &post))
	}

	matches, err := srv.Posts().Search(ctx, "capped")
	require.NoError(t, err)
	require.Len(t, matches, 20)
}

func TestPosts_AuthorResolution(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	author := registerAccount(t, srv, "resolved@example.com")
	tc := identity(author.ID, skald.RoleAdmin)
	post := createPost(t, srv, tc, skald.CreatePostRequest{
		Title: "Owned entry", Content: "This entry has a live author", AuthorID: author.ID,
	})

	resolved, err := srv.Posts().Author(ctx, post)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	require.Equal(t, author.ID, resolved.ID)

	// The post outlives its author; resolution degrades to absent
	_, err = srv.Accounts().Delete(ctx, tc, author.ID)
	require.NoError(t, err)

	resolved, err = srv.Posts().Author(ctx, post)
	require.NoError(t, err)
	require.Nil(t, resolved)
}

//------------------------------
// Leads
//------------------------------

func TestLeads_Lifecycle(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	owner := registerAccount(t, srv, "sales@example.com")
	tc := identity(owner.ID, skald.RoleUser)

	lead, err := srv.Leads().Create(ctx, tc, skald.CreateLeadRequest{
		Title:     "Mr",
		FirstName: "Olaf",
		LastName:  "Tryggvason",
		Email:     "olaf@example.com",
		Company:   skald.StringList{"Norse Shipping"},
		Status:    "new",
	})
	require.NoError(t, err)
	require.NotEmpty(t, lead.ID)
	require.True(t, lead.IsActive)

	status := "qualified"
	updated, err := srv.Leads().Update(ctx, tc, lead.ID, skald.UpdateLeadRequest{Status: &status})
	require.NoError(t, err)
	require.Equal(t, "qualified", updated.Status)
	require.Equal(t, lead.FirstName, updated.FirstName)
	require.Equal(t, lead.Company, updated.Company)

	page, err := srv.Leads().List(ctx, skald.Pagination{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	ok, err := srv.Leads().Delete(ctx, tc, lead.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = srv.Leads().Get(ctx, lead.ID)
	require.Equal(t, skald.KindNotFound, skald.KindOf(err))
}

func TestLeads_Validation(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	owner := registerAccount(t, srv, "crm@example.com")
	tc := identity(owner.ID, skald.RoleUser)

	testCases := map[string]skald.CreateLeadRequest{
		"missing-title":   {FirstName: "Olaf", Email: "l@example.com"},
		"short-name":      {Title: "Mr", FirstName: "Ol", Email: "l@example.com"},
		"long-name":       {Title: "Mr", FirstName: makeString(21), Email: "l@example.com"},
		"malformed-email": {Title: "Mr", FirstName: "Olaf", Email: "not-an-email"},
	}

	for name, entry := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := srv.Leads().Create(ctx, tc, entry)
			require.Equal(t, skald.KindValidation, skald.KindOf(err))
		})
	}

	_, err := srv.Leads().Create(ctx, trust.Anonymous, skald.CreateLeadRequest{
		Title: "Mr", FirstName: "Olaf", Email: "l@example.com",
	})
	require.Equal(t, skald.KindUnauthenticated, skald.KindOf(err))
}

func TestLeads_DuplicateEmail(t *testing.T) {
	srv, _ := newTestService(t)
	ctx := context.Background()

	owner := registerAccount(t, srv, "dupes@example.com")
	tc := identity(owner.ID, skald.RoleUser)

	_, err := srv.Leads().Create(ctx, tc, skald.CreateLeadRequest{
		Title: "Mr", FirstName: "Olaf", Email: "contact@example.com",
	})
	require.NoError(t, err)

	_, err = srv.Leads().Create(ctx, tc, skald.CreateLeadRequest{
		Title: "Ms", FirstName: "Astrid", Email: "contact@example.com",
	})
	require.Equal(t, skald.KindValidation, skald.KindOf(err))
}
