package skald

import (
	"context"
	"errors"
	"regexp"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/sre-norns/skald/pkg/trust"
)

const (
	paginationLimit    = 100
	searchResultsLimit = 20
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// TokenIssuer mints a bearer token for a freshly authenticated identity.
type TokenIssuer interface {
	Issue(identity trust.Identity) (string, error)
}

// AccountsApi encapsulates operations on account records.
// Reads require a non-anonymous trust context; Update requires the caller
// to be the account owner or an admin; Delete requires an admin.
type AccountsApi interface {
	List(ctx context.Context, tc trust.Context, page Pagination) (PageResult[Account], error)
	Get(ctx context.Context, tc trust.Context, id ResourceID) (Account, error)

	Register(ctx context.Context, entry CreateAccountRequest) (AuthResponse, error)
	Login(ctx context.Context, entry LoginRequest) (AuthResponse, error)

	Update(ctx context.Context, tc trust.Context, id ResourceID, entry UpdateAccountRequest) (Account, error)
	Delete(ctx context.Context, tc trust.Context, id ResourceID) (bool, error)
}

// PostsApi encapsulates operations on post records. Reads are open;
// mutations require a non-anonymous trust context.
type PostsApi interface {
	List(ctx context.Context, page Pagination) (PageResult[Post], error)
	Get(ctx context.Context, id ResourceID) (Post, error)
	ListByAuthor(ctx context.Context, authorID ResourceID) ([]Post, error)
	ListPublished(ctx context.Context) ([]Post, error)
	Search(ctx context.Context, term string) ([]Post, error)

	// Author resolves the account that owns a post, on demand.
	// Returns nil when the owning account no longer exists.
	Author(ctx context.Context, post Post) (*Account, error)

	Create(ctx context.Context, tc trust.Context, entry CreatePostRequest) (Post, error)
	Update(ctx context.Context, tc trust.Context, id ResourceID, entry UpdatePostRequest) (Post, error)
	Delete(ctx context.Context, tc trust.Context, id ResourceID) (bool, error)
	Publish(ctx context.Context, tc trust.Context, id ResourceID) (Post, error)
}

// LeadsApi encapsulates operations on lead records. Reads are open;
// mutations require a non-anonymous trust context.
type LeadsApi interface {
	List(ctx context.Context, page Pagination) (PageResult[Lead], error)
	Get(ctx context.Context, id ResourceID) (Lead, error)

	Create(ctx context.Context, tc trust.Context, entry CreateLeadRequest) (Lead, error)
	Update(ctx context.Context, tc trust.Context, id ResourceID, entry UpdateLeadRequest) (Lead, error)
	Delete(ctx context.Context, tc trust.Context, id ResourceID) (bool, error)
}

type Service interface {
	Accounts() AccountsApi
	Posts() PostsApi
	Leads() LeadsApi
}

func NewService(store Store, tokens TokenIssuer, logger log.Logger) Service {
	return &serviceImpl{
		store:  store,
		tokens: tokens,
		log:    logger,
	}
}

type (
	serviceImpl struct {
		store  Store
		tokens TokenIssuer
		log    log.Logger
	}

	accountsApiImpl struct {
		store  Store
		tokens TokenIssuer
		log    log.Logger
	}

	postsApiImpl struct {
		store Store
		log   log.Logger
	}

	leadsApiImpl struct {
		store Store
		log   log.Logger
	}
)

func (s *serviceImpl) Accounts() AccountsApi {
	return &accountsApiImpl{
		store:  s.store,
		tokens: s.tokens,
		log:    s.log,
	}
}

func (s *serviceImpl) Posts() PostsApi {
	return &postsApiImpl{
		store: s.store,
		log:   s.log,
	}
}

func (s *serviceImpl) Leads() LeadsApi {
	return &leadsApiImpl{
		store: s.store,
		log:   s.log,
	}
}

// listPage runs the page fetch and the total count as two independent reads.
// The total may lag the page under concurrent writes; accepted approximation.
func listPage[T any](ctx context.Context, store Store, page Pagination, filter map[string]any) (PageResult[T], error) {
	page.ClampLimit(paginationLimit)

	var items []T
	var total int64

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return store.Find(grpCtx, &items, Query{Pagination: page, Filter: filter})
	})
	grp.Go(func() (err error) {
		var model T
		total, err = store.Count(grpCtx, &model, Query{Filter: filter})
		return
	})

	if err := grp.Wait(); err != nil {
		return PageResult[T]{}, storeError(err)
	}

	return NewPageResult(items, total, page), nil
}

// storeError folds raw store failures into the service error taxonomy.
func storeError(err error) error {
	if errors.Is(err, ErrDuplicateValue) {
		return NewErrorf(KindValidation, "%v", err)
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	return NewErrorf(KindInternal, "store operation failed: %w", err)
}

//------------------------------
// Accounts API
//------------------------------

func (m *accountsApiImpl) List(ctx context.Context, tc trust.Context, page Pagination) (PageResult[Account], error) {
	if tc.Anonymous() {
		return PageResult[Account]{}, ErrAuthenticationRequired()
	}

	return listPage[Account](ctx, m.store, page, nil)
}

func (m *accountsApiImpl) Get(ctx context.Context, tc trust.Context, id ResourceID) (Account, error) {
	if tc.Anonymous() {
		return Account{}, ErrAuthenticationRequired()
	}

	var result Account
	ok, err := m.store.Get(ctx, &result, id)
	if err != nil {
		return Account{}, storeError(err)
	}
	if !ok {
		return Account{}, ErrNotFound("account")
	}

	return result, nil
}

func (m *accountsApiImpl) Register(ctx context.Context, entry CreateAccountRequest) (AuthResponse, error) {
	if err := validateAccount(entry); err != nil {
		return AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, NewErrorf(KindInternal, "failed to hash password: %w", err)
	}

	role := entry.Role
	if role == "" {
		role = RoleUser
	}

	account := Account{
		Name:     entry.Name,
		Email:    entry.Email,
		Password: string(hash),
		Role:     role,
		Age:      entry.Age,
		IsActive: true,
	}

	if err := m.store.Create(ctx, &account); err != nil {
		if errors.Is(err, ErrDuplicateValue) {
			return AuthResponse{}, NewError(KindValidation, "email already exists")
		}
		return AuthResponse{}, storeError(err)
	}

	level.Info(m.log).Log("msg", "account registered", "id", account.ID)

	return m.authResponse(account)
}

func (m *accountsApiImpl) Login(ctx context.Context, entry LoginRequest) (AuthResponse, error) {
	var account Account
	ok, err := m.store.FindOne(ctx, &account, Query{Filter: map[string]any{"email": entry.Email}})
	if err != nil {
		return AuthResponse{}, storeError(err)
	}
	if !ok {
		return AuthResponse{}, NewError(KindUnauthenticated, "invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(entry.Password)); err != nil {
		return AuthResponse{}, NewError(KindUnauthenticated, "invalid credentials")
	}

	if !account.IsActive {
		return AuthResponse{}, NewError(KindUnauthenticated, "account is deactivated")
	}

	return m.authResponse(account)
}

func (m *accountsApiImpl) authResponse(account Account) (AuthResponse, error) {
	token, err := m.tokens.Issue(trust.Identity{
		ID:    string(account.ID),
		Email: account.Email,
		Role:  account.Role,
	})
	if err != nil {
		return AuthResponse{}, NewErrorf(KindInternal, "failed to issue token: %w", err)
	}

	return AuthResponse{Token: token, Account: account}, nil
}

func (m *accountsApiImpl) Update(ctx context.Context, tc trust.Context, id ResourceID, entry UpdateAccountRequest) (Account, error) {
	if tc.Anonymous() {
		return Account{}, ErrAuthenticationRequired()
	}
	if tc.Identity.ID != string(id) && !tc.HasRole(RoleAdmin) {
		return Account{}, ErrNotAuthorized()
	}

	fields := map[string]any{}
	if entry.Name != nil {
		fields["name"] = *entry.Name
	}
	if entry.Email != nil {
		if !emailPattern.MatchString(*entry.Email) {
			return Account{}, NewError(KindValidation, "please provide a valid email")
		}
		fields["email"] = *entry.Email
	}
	if entry.Age != nil {
		fields["age"] = *entry.Age
	}
	if entry.IsActive != nil {
		fields["is_active"] = *entry.IsActive
	}

	return patchAndReload[Account](ctx, m.store, "account", id, fields)
}

func (m *accountsApiImpl) Delete(ctx context.Context, tc trust.Context, id ResourceID) (bool, error) {
	if tc.Anonymous() {
		return false, ErrAuthenticationRequired()
	}
	if !tc.HasRole(RoleAdmin) {
		return false, ErrNotAuthorized()
	}

	existed, err := m.store.Delete(ctx, &Account{}, id)
	if err != nil {
		return false, storeError(err)
	}
	if !existed {
		return false, ErrNotFound("account")
	}

	return true, nil
}

func validateAccount(entry CreateAccountRequest) error {
	if entry.Name == "" {
		return NewError(KindValidation, "name is required")
	}
	if !emailPattern.MatchString(entry.Email) {
		return NewError(KindValidation, "please provide a valid email")
	}
	if entry.Password == "" {
		return NewError(KindValidation, "password is required")
	}
	if entry.Role != "" && entry.Role != RoleUser && entry.Role != RoleAdmin {
		return NewErrorf(KindValidation, "unknown role %q", entry.Role)
	}

	return nil
}

// patchAndReload applies a partial patch and re-fetches the stored record.
// An empty patch degrades to a plain read.
func patchAndReload[T any](ctx context.Context, store Store, what string, id ResourceID, fields map[string]any) (T, error) {
	var result T

	if len(fields) > 0 {
		ok, err := store.Patch(ctx, &result, id, fields)
		if err != nil {
			return result, storeError(err)
		}
		if !ok {
			return result, ErrNotFound(what)
		}
	}

	ok, err := store.Get(ctx, &result, id)
	if err != nil {
		return result, storeError(err)
	}
	if !ok {
		return result, ErrNotFound(what)
	}

	return result, nil
}

//------------------------------
// Posts API
//------------------------------

func (m *postsApiImpl) List(ctx context.Context, page Pagination) (PageResult[Post], error) {
	level.Debug(m.log).Log("msg", "fetching posts", "limit", page.Limit, "offset", page.Offset)
	return listPage[Post](ctx, m.store, page, nil)
}

func (m *postsApiImpl) Get(ctx context.Context, id ResourceID) (Post, error) {
	var result Post
	ok, err := m.store.Get(ctx, &result, id)
	if err != nil {
		return Post{}, storeError(err)
	}
	if !ok {
		return Post{}, ErrNotFound("post")
	}

	return result, nil
}

func (m *postsApiImpl) ListByAuthor(ctx context.Context, authorID ResourceID) ([]Post, error) {
	var results []Post
	err := m.store.Find(ctx, &results, Query{
		Pagination: Pagination{Limit: paginationLimit},
		Filter:     map[string]any{"author_id": authorID},
	})
	if err != nil {
		return nil, storeError(err)
	}

	return results, nil
}

func (m *postsApiImpl) ListPublished(ctx context.Context) ([]Post, error) {
	var results []Post
	err := m.store.Find(ctx, &results, Query{
		Pagination: Pagination{Limit: paginationLimit},
		Filter:     map[string]any{"published": true},
	})
	if err != nil {
		return nil, storeError(err)
	}

	return results, nil
}

func (m *postsApiImpl) Search(ctx context.Context, term string) ([]Post, error) {
	if term == "" {
		return nil, NewError(KindValidation, "search term is required")
	}

	var results []Post
	err := m.store.Find(ctx, &results, Query{
		Pagination: Pagination{Limit: searchResultsLimit},
		Match: &TextMatch{
			Columns: []string{"title", "content"},
			Term:    term,
		},
	})
	if err != nil {
		return nil, storeError(err)
	}

	return results, nil
}

func (m *postsApiImpl) Author(ctx context.Context, post Post) (*Account, error) {
	var author Account
	ok, err := m.store.Get(ctx, &author, post.AuthorID)
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, nil
	}

	return &author, nil
}

func (m *postsApiImpl) Create(ctx context.Context, tc trust.Context, entry CreatePostRequest) (Post, error) {
	if tc.Anonymous() {
		return Post{}, ErrAuthenticationRequired()
	}
	if err := validatePostFields(entry.Title, entry.Content); err != nil {
		return Post{}, err
	}

	// The author reference is validated, not enforced by the store
	var author Account
	ok, err := m.store.Get(ctx, &author, entry.AuthorID)
	if err != nil {
		return Post{}, storeError(err)
	}
	if !ok {
		return Post{}, NewError(KindValidation, "author not found")
	}

	published := true
	if entry.Published != nil {
		published = *entry.Published
	}

	post := Post{
		Title:     entry.Title,
		Content:   entry.Content,
		AuthorID:  entry.AuthorID,
		Published: published,
		Tags:      entry.Tags,
	}

	if err := m.store.Create(ctx, &post); err != nil {
		return Post{}, storeError(err)
	}

	level.Info(m.log).Log("msg", "post created", "id", post.ID, "author", post.AuthorID)

	return post, nil
}

func (m *postsApiImpl) Update(ctx context.Context, tc trust.Context, id ResourceID, entry UpdatePostRequest) (Post, error) {
	if tc.Anonymous() {
		return Post{}, ErrAuthenticationRequired()
	}

	fields := map[string]any{}
	if entry.Title != nil {
		if err := validateTitle(*entry.Title); err != nil {
			return Post{}, err
		}
		fields["title"] = *entry.Title
	}
	if entry.Content != nil {
		if err := validateContent(*entry.Content); err != nil {
			return Post{}, err
		}
		fields["content"] = *entry.Content
	}
	if entry.Published != nil {
		fields["published"] = *entry.Published
	}
	if entry.Tags != nil {
		fields["tags"] = *entry.Tags
	}

	return patchAndReload[Post](ctx, m.store, "post", id, fields)
}

func (m *postsApiImpl) Delete(ctx context.Context, tc trust.Context, id ResourceID) (bool, error) {
	if tc.Anonymous() {
		return false, ErrAuthenticationRequired()
	}

	existed, err := m.store.Delete(ctx, &Post{}, id)
	if err != nil {
		return false, storeError(err)
	}
	if !existed {
		return false, ErrNotFound("post")
	}

	return true, nil
}

func (m *postsApiImpl) Publish(ctx context.Context, tc trust.Context, id ResourceID) (Post, error) {
	if tc.Anonymous() {
		return Post{}, ErrAuthenticationRequired()
	}

	return patchAndReload[Post](ctx, m.store, "post", id, map[string]any{"published": true})
}

func validatePostFields(title, content string) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	return validateContent(content)
}

func validateTitle(title string) error {
	if len(title) < 3 {
		return NewError(KindValidation, "title must be at least 3 characters")
	}
	if len(title) > 200 {
		return NewError(KindValidation, "title cannot exceed 200 characters")
	}
	return nil
}

func validateContent(content string) error {
	if len(content) < 10 {
		return NewError(KindValidation, "content must be at least 10 characters")
	}
	if len(content) > 5000 {
		return NewError(KindValidation, "content cannot exceed 5000 characters")
	}
	return nil
}

//------------------------------
// Leads API
//------------------------------

func (m *leadsApiImpl) List(ctx context.Context, page Pagination) (PageResult[Lead], error) {
	level.Debug(m.log).Log("msg", "fetching leads", "limit", page.Limit, "offset", page.Offset)
	return listPage[Lead](ctx, m.store, page, nil)
}

func (m *leadsApiImpl) Get(ctx context.Context, id ResourceID) (Lead, error) {
	var result Lead
	ok, err := m.store.Get(ctx, &result, id)
	if err != nil {
		return Lead{}, storeError(err)
	}
	if !ok {
		return Lead{}, ErrNotFound("lead")
	}

	return result, nil
}

func (m *leadsApiImpl) Create(ctx context.Context, tc trust.Context, entry CreateLeadRequest) (Lead, error) {
	if tc.Anonymous() {
		return Lead{}, ErrAuthenticationRequired()
	}
	if err := validateLead(entry); err != nil {
		return Lead{}, err
	}

	lead := Lead{
		Title:       entry.Title,
		FirstName:   entry.FirstName,
		LastName:    entry.LastName,
		Email:       entry.Email,
		Company:     entry.Company,
		Phone:       entry.Phone,
		Status:      entry.Status,
		Description: entry.Description,
		Segment:     entry.Segment,
		Assigned:    entry.Assigned,
		IsActive:    true,
	}

	if err := m.store.Create(ctx, &lead); err != nil {
		if errors.Is(err, ErrDuplicateValue) {
			return Lead{}, NewError(KindValidation, "email already exists")
		}
		return Lead{}, storeError(err)
	}

	level.Info(m.log).Log("msg", "lead created", "id", lead.ID)

	return lead, nil
}

func (m *leadsApiImpl) Update(ctx context.Context, tc trust.Context, id ResourceID, entry UpdateLeadRequest) (Lead, error) {
	if tc.Anonymous() {
		return Lead{}, ErrAuthenticationRequired()
	}

	fields := map[string]any{}
	if entry.Title != nil {
		fields["title"] = *entry.Title
	}
	if entry.FirstName != nil {
		if err := validateFirstName(*entry.FirstName); err != nil {
			return Lead{}, err
		}
		fields["first_name"] = *entry.FirstName
	}
	if entry.LastName != nil {
		fields["last_name"] = *entry.LastName
	}
	if entry.Email != nil {
		if !emailPattern.MatchString(*entry.Email) {
			return Lead{}, NewError(KindValidation, "please provide a valid email")
		}
		fields["email"] = *entry.Email
	}
	if entry.Phone != nil {
		fields["phone"] = *entry.Phone
	}
	if entry.Status != nil {
		fields["status"] = *entry.Status
	}
	if entry.Description != nil {
		fields["description"] = *entry.Description
	}
	if entry.Segment != nil {
		fields["segment"] = *entry.Segment
	}
	if entry.Assigned != nil {
		fields["assigned"] = *entry.Assigned
	}
	if entry.IsActive != nil {
		fields["is_active"] = *entry.IsActive
	}

	result, err := patchAndReload[Lead](ctx, m.store, "lead", id, fields)
	if err != nil && errors.Is(err, ErrDuplicateValue) {
		return Lead{}, NewError(KindValidation, "email already exists")
	}

	return result, err
}

func (m *leadsApiImpl) Delete(ctx context.Context, tc trust.Context, id ResourceID) (bool, error) {
	if tc.Anonymous() {
		return false, ErrAuthenticationRequired()
	}

	existed, err := m.store.Delete(ctx, &Lead{}, id)
	if err != nil {
		return false, storeError(err)
	}
	if !existed {
		return false, ErrNotFound("lead")
	}

	return true, nil
}

func validateLead(entry CreateLeadRequest) error {
	if entry.Title == "" {
		return NewError(KindValidation, "title is required")
	}
	if err := validateFirstName(entry.FirstName); err != nil {
		return err
	}
	if !emailPattern.MatchString(entry.Email) {
		return NewError(KindValidation, "please provide a valid email")
	}

	return nil
}

func validateFirstName(name string) error {
	if len(name) < 3 {
		return NewError(KindValidation, "firstName must be at least 3 characters")
	}
	if len(name) > 20 {
		return NewError(KindValidation, "firstName cannot exceed 20 characters")
	}

	return nil
}
