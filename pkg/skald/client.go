package skald

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
)

// RestApiClient talks to a running API server. A token is optional:
// without one the client is limited to the open read surface.
type RestApiClient struct {
	baseUrl    *url.URL
	httpClient *http.Client
	token      string
}

func NewRestApiClient(baseUrl string, token string) (*RestApiClient, error) {
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}

	return &RestApiClient{
		baseUrl:    parsed,
		httpClient: &http.Client{},
		token:      token,
	}, nil
}

func (c *RestApiClient) urlForPath(apiPath string, queryParams url.Values) *url.URL {
	targetApi := *c.baseUrl
	targetApi.Path = path.Join(targetApi.Path, "api/v1", apiPath)
	if queryParams != nil {
		targetApi.RawQuery = queryParams.Encode()
	}

	return &targetApi
}

func paginationToQuery(page Pagination) url.Values {
	queryParams := url.Values{}
	if page.Offset > 0 {
		queryParams.Set("offset", strconv.FormatUint(uint64(page.Offset), 10))
	}
	if page.Limit > 0 {
		queryParams.Set("limit", strconv.FormatUint(uint64(page.Limit), 10))
	}

	return queryParams
}

func (c *RestApiClient) do(ctx context.Context, method string, apiUrl *url.URL, body io.Reader) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, method, apiUrl.String(), body)
	if err != nil {
		return nil, err
	}

	request.Header.Add("Accept", "application/json")
	if body != nil {
		request.Header.Add("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	}

	return c.httpClient.Do(request)
}

func (c *RestApiClient) getJson(ctx context.Context, apiUrl *url.URL, dest any) error {
	resp, err := c.do(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readApiError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *RestApiClient) sendJson(ctx context.Context, method string, apiUrl *url.URL, entry any, dest any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, method, apiUrl, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return readApiError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *RestApiClient) deleteResource(ctx context.Context, apiUrl *url.URL) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, apiUrl, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return false, readApiError(resp)
	}

	return true, nil
}

// readApiError recovers the service error taxonomy from a wire response,
// falling back to the HTTP status line for non-conforming bodies.
func readApiError(resp *http.Response) error {
	var errorResponse ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResponse); err != nil || errorResponse.Code == "" {
		return NewErrorf(KindInternal, "unexpected response: %v", resp.Status)
	}

	return NewError(ErrorKind(errorResponse.Code), errorResponse.Message)
}

//------------------------------
// Auth & accounts
//------------------------------

func (c *RestApiClient) Login(ctx context.Context, entry LoginRequest) (result AuthResponse, err error) {
	err = c.sendJson(ctx, http.MethodPost, c.urlForPath("auth/login", nil), entry, &result)
	return
}

func (c *RestApiClient) Register(ctx context.Context, entry CreateAccountRequest) (result AuthResponse, err error) {
	err = c.sendJson(ctx, http.MethodPost, c.urlForPath("accounts", nil), entry, &result)
	return
}

func (c *RestApiClient) Me(ctx context.Context) (result Account, err error) {
	err = c.getJson(ctx, c.urlForPath("auth/me", nil), &result)
	return
}

func (c *RestApiClient) ListAccounts(ctx context.Context, page Pagination) (result PageResult[Account], err error) {
	err = c.getJson(ctx, c.urlForPath("accounts", paginationToQuery(page)), &result)
	return
}

func (c *RestApiClient) GetAccount(ctx context.Context, id ResourceID) (result Account, err error) {
	err = c.getJson(ctx, c.urlForPath(path.Join("accounts", string(id)), nil), &result)
	return
}

func (c *RestApiClient) UpdateAccount(ctx context.Context, id ResourceID, entry UpdateAccountRequest) (result Account, err error) {
	err = c.sendJson(ctx, http.MethodPut, c.urlForPath(path.Join("accounts", string(id)), nil), entry, &result)
	return
}

func (c *RestApiClient) DeleteAccount(ctx context.Context, id ResourceID) (bool, error) {
	return c.deleteResource(ctx, c.urlForPath(path.Join("accounts", string(id)), nil))
}

//------------------------------
// Posts
//------------------------------

func (c *RestApiClient) ListPosts(ctx context.Context, page Pagination) (result PageResult[Post], err error) {
	err = c.getJson(ctx, c.urlForPath("posts", paginationToQuery(page)), &result)
	return
}

func (c *RestApiClient) SearchPosts(ctx context.Context, term string) (result []Post, err error) {
	queryParams := url.Values{}
	queryParams.Set("search", term)

	err = c.getJson(ctx, c.urlForPath("posts", queryParams), &result)
	return
}

func (c *RestApiClient) ListPostsByAuthor(ctx context.Context, authorID ResourceID) (result []Post, err error) {
	err = c.getJson(ctx, c.urlForPath(path.Join("accounts", string(authorID), "posts"), nil), &result)
	return
}

func (c *RestApiClient) ListPublishedPosts(ctx context.Context) (result []Post, err error) {
	queryParams := url.Values{}
	queryParams.Set("published", "true")

	err = c.getJson(ctx, c.urlForPath("posts", queryParams), &result)
	return
}

func (c *RestApiClient) GetPost(ctx context.Context, id ResourceID) (result Post, err error) {
	err = c.getJson(ctx, c.urlForPath(path.Join("posts", string(id)), nil), &result)
	return
}

func (c *RestApiClient) GetPostAuthor(ctx context.Context, id ResourceID) (result Account, err error) {
	err = c.getJson(ctx, c.urlForPath(path.Join("posts", string(id), "author"), nil), &result)
	return
}

func (c *RestApiClient) CreatePost(ctx context.Context, entry CreatePostRequest) (result Post, err error) {
	err = c.sendJson(ctx, http.MethodPost, c.urlForPath("posts", nil), entry, &result)
	return
}

func (c *RestApiClient) UpdatePost(ctx context.Context, id ResourceID, entry UpdatePostRequest) (result Post, err error) {
	err = c.sendJson(ctx, http.MethodPut, c.urlForPath(path.Join("posts", string(id)), nil), entry, &result)
	return
}

func (c *RestApiClient) PublishPost(ctx context.Context, id ResourceID) (result Post, err error) {
	err = c.sendJson(ctx, http.MethodPost, c.urlForPath(path.Join("posts", string(id), "publish"), nil), struct{}{}, &result)
	return
}

func (c *RestApiClient) DeletePost(ctx context.Context, id ResourceID) (bool, error) {
	return c.deleteResource(ctx, c.urlForPath(path.Join("posts", string(id)), nil))
}

//------------------------------
// Leads
//------------------------------

func (c *RestApiClient) ListLeads(ctx context.Context, page Pagination) (result PageResult[Lead], err error) {
	err = c.getJson(ctx, c.urlForPath("leads", paginationToQuery(page)), &result)
	return
}

func (c *RestApiClient) GetLead(ctx context.Context, id ResourceID) (result Lead, err error) {
	err = c.getJson(ctx, c.urlForPath(path.Join("leads", string(id)), nil), &result)
	return
}

func (c *RestApiClient) CreateLead(ctx context.Context, entry CreateLeadRequest) (result Lead, err error) {
	err = c.sendJson(ctx, http.MethodPost, c.urlForPath("leads", nil), entry, &result)
	return
}

func (c *RestApiClient) UpdateLead(ctx context.Context, id ResourceID, entry UpdateLeadRequest) (result Lead, err error) {
	err = c.sendJson(ctx, http.MethodPut, c.urlForPath(path.Join("leads", string(id)), nil), entry, &result)
	return
}

func (c *RestApiClient) DeleteLead(ctx context.Context, id ResourceID) (bool, error) {
	return c.deleteResource(ctx, c.urlForPath(path.Join("leads", string(id)), nil))
}
