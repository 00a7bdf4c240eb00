package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"peerpress/app/cfg"
	"peerpress/app/database"
	"peerpress/app/feed"
	"peerpress/app/protocol"
)

// The stubs embed the repository interfaces so only the methods a test
// exercises need an implementation.

type stubFriendRepo struct {
	database.FriendRepository
	friends map[string]*database.Friend
}

func newStubFriendRepo() *stubFriendRepo {
	return &stubFriendRepo{friends: make(map[string]*database.Friend)}
}

func (r *stubFriendRepo) GetFriend(id string) (*database.Friend, error) {
	return r.friends[id], nil
}

func (r *stubFriendRepo) GetFriendsByRoles(roles ...string) ([]database.Friend, error) {
	var friends []database.Friend
	for _, f := range r.friends {
		friends = append(friends, *f)
	}
	return friends, nil
}

func (r *stubFriendRepo) UpdateFriend(f *database.Friend) error {
	stored := *f
	r.friends[f.ID] = &stored
	return nil
}

func (r *stubFriendRepo) DeleteFriend(id string) error {
	delete(r.friends, id)
	return nil
}

func (r *stubFriendRepo) GetFriendCount() (int, error) {
	return len(r.friends), nil
}

type stubLocalPostRepo struct {
	database.LocalPostRepository
	posts    map[string]*database.LocalPost
	statuses []string
}

func newStubLocalPostRepo() *stubLocalPostRepo {
	return &stubLocalPostRepo{posts: make(map[string]*database.LocalPost)}
}

func (r *stubLocalPostRepo) CreateLocalPost(p *database.LocalPost) error {
	stored := *p
	r.posts[p.ID] = &stored
	return nil
}

func (r *stubLocalPostRepo) GetLocalPost(id string) (*database.LocalPost, error) {
	return r.posts[id], nil
}

func (r *stubLocalPostRepo) GetLocalPosts(limit int, statuses ...string) ([]database.LocalPost, error) {
	r.statuses = statuses
	var posts []database.LocalPost
	for _, p := range r.posts {
		for _, status := range statuses {
			if p.Status == status {
				posts = append(posts, *p)
				break
			}
		}
	}
	return posts, nil
}

func (r *stubLocalPostRepo) DeleteLocalPost(id string) error {
	delete(r.posts, id)
	return nil
}

type stubPostRepo struct {
	database.PostRepository
	posts []database.Post
}

func (r *stubPostRepo) GetPostsForFriend(friendID string, statuses ...string) ([]database.Post, error) {
	return r.posts, nil
}

func (r *stubPostRepo) GetPostCount() (int, error) {
	return len(r.posts), nil
}

type stubReactionRepo struct {
	database.ReactionRepository
	reactions map[string][]database.Reaction
	loaded    []string
}

func (r *stubReactionRepo) GetReactions(postID string) ([]database.Reaction, error) {
	r.loaded = append(r.loaded, postID)
	return r.reactions[postID], nil
}

type stubRuleRepo struct {
	database.RuleRepository
	saved map[string][]database.Rule
}

func newStubRuleRepo() *stubRuleRepo {
	return &stubRuleRepo{saved: make(map[string][]database.Rule)}
}

func (r *stubRuleRepo) ReplaceRules(friendID string, rules []database.Rule) error {
	r.saved[friendID] = rules
	return nil
}

func (r *stubRuleRepo) GetRules(friendID string) ([]database.Rule, error) {
	return r.saved[friendID], nil
}

type stubSubRepo struct {
	database.SubscriptionRepository
	subscriptions []database.Subscription
}

func (r *stubSubRepo) GetSubscriptionsForFriend(friendID string) ([]database.Subscription, error) {
	return r.subscriptions, nil
}

func (r *stubSubRepo) UpsertSubscription(s *database.Subscription) error {
	if s.ID == "" {
		s.ID = "sub-1"
	}
	r.subscriptions = append(r.subscriptions, *s)
	return nil
}

func (r *stubSubRepo) GetSubscription(id string) (*database.Subscription, error) {
	for i := range r.subscriptions {
		if r.subscriptions[i].ID == id {
			copied := r.subscriptions[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *stubSubRepo) SetSubscriptionActive(id string, active bool) error {
	for i := range r.subscriptions {
		if r.subscriptions[i].ID == id {
			r.subscriptions[i].Active = active
		}
	}
	return nil
}

func (r *stubSubRepo) DeleteSubscription(id string) error {
	return nil
}

type fakeHandshake struct {
	sendFn         func(ctx context.Context, siteURL, message string) (*database.Friend, error)
	handleFn       func(in protocol.IncomingRequest) (string, error)
	acceptFn       func(ctx context.Context, friendID string) error
	confirmFn      func(in protocol.AcceptConfirmation) (string, error)
	postDeletedFn  func(token, auth, remotePostID string) (bool, error)
	authenticateFn func(token, auth string) (*database.Friend, error)
	propagated     chan string
}

func (f *fakeHandshake) SendFriendRequest(ctx context.Context, siteURL, message string) (*database.Friend, error) {
	return f.sendFn(ctx, siteURL, message)
}

func (f *fakeHandshake) HandleFriendRequest(in protocol.IncomingRequest) (string, error) {
	return f.handleFn(in)
}

func (f *fakeHandshake) AcceptFriendRequest(ctx context.Context, friendID string) error {
	return f.acceptFn(ctx, friendID)
}

func (f *fakeHandshake) HandleAcceptConfirmation(in protocol.AcceptConfirmation) (string, error) {
	return f.confirmFn(in)
}

func (f *fakeHandshake) HandlePostDeleted(token, auth, remotePostID string) (bool, error) {
	return f.postDeletedFn(token, auth, remotePostID)
}

func (f *fakeHandshake) PropagatePostDeletion(ctx context.Context, postID string) {
	if f.propagated != nil {
		f.propagated <- postID
	}
}

func (f *fakeHandshake) AuthenticateFeedToken(token, auth string) (*database.Friend, error) {
	if f.authenticateFn == nil {
		return nil, nil
	}
	return f.authenticateFn(token, auth)
}

type fakeIndieAuth struct {
	beginFn     func(ctx context.Context, me string) (string, error)
	authorizeFn func(params protocol.AuthorizeParams) (*protocol.AuthorizeResult, error)
}

func (f *fakeIndieAuth) BeginRedirect(ctx context.Context, me string) (string, error) {
	return f.beginFn(ctx, me)
}

func (f *fakeIndieAuth) Authorize(params protocol.AuthorizeParams) (*protocol.AuthorizeResult, error) {
	return f.authorizeFn(params)
}

type fakeDiscovery struct {
	feeds map[string]feed.FeedInfo
	err   error
}

func (f *fakeDiscovery) DiscoverFeeds(ctx context.Context, url string) (map[string]feed.FeedInfo, error) {
	return f.feeds, f.err
}

type fakeScheduler struct {
	refreshed []string
}

func (f *fakeScheduler) RefreshFriend(friendID string) {
	f.refreshed = append(f.refreshed, friendID)
}

type testEnv struct {
	friends    *stubFriendRepo
	subs       *stubSubRepo
	posts      *stubPostRepo
	localPosts *stubLocalPostRepo
	rules      *stubRuleRepo
	reactions  *stubReactionRepo
	handshake  *fakeHandshake
	indieauth  *fakeIndieAuth
	discovery  *fakeDiscovery
	scheduler  *fakeScheduler
	router     *gin.Engine
}

func newTestEnv() *testEnv {
	cfg.Set(&cfg.Cfg{
		BaseUrl:  "https://me.example.com",
		SiteName: "My Site",
		Port:     "8080",
		Version:  "test",
	})

	env := &testEnv{
		friends:    newStubFriendRepo(),
		subs:       &stubSubRepo{},
		posts:      &stubPostRepo{},
		localPosts: newStubLocalPostRepo(),
		rules:      newStubRuleRepo(),
		reactions:  &stubReactionRepo{reactions: make(map[string][]database.Reaction)},
		handshake:  &fakeHandshake{},
		indieauth:  &fakeIndieAuth{},
		discovery:  &fakeDiscovery{},
		scheduler:  &fakeScheduler{},
	}
	handler := NewHandler(env.friends, env.subs, env.posts, env.localPosts,
		env.rules, env.reactions, env.handshake, env.indieauth, env.discovery, env.scheduler)
	env.router = NewServer(handler, "secret-key")
	return env
}

func (env *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) adminRequest(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v: %s", err, w.Body.String())
	}
	return body
}

func TestReceiveFriendRequest(t *testing.T) {
	env := newTestEnv()
	var received protocol.IncomingRequest
	env.handshake.handleFn = func(in protocol.IncomingRequest) (string, error) {
		received = in
		return "corr-id-1", nil
	}

	w := env.postForm("/friends/v1/friend-request", url.Values{
		"version":  {"2"},
		"url":      {"https://alice.example.com"},
		"name":     {"Alice"},
		"icon_url": {"https://alice.example.com/icon.png"},
		"key":      {"token-half-a"},
		"message":  {"hi"},
		"codeword": {"friends"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["request"] != "corr-id-1" {
		t.Errorf("Expected the correlation id returned, got %v", body)
	}
	if received.URL != "https://alice.example.com" || received.Key != "token-half-a" ||
		received.Name != "Alice" || received.Codeword != "friends" {
		t.Errorf("Form fields not passed through: %+v", received)
	}
}

func TestReceiveFriendRequest_ErrorMapping(t *testing.T) {
	env := newTestEnv()
	env.handshake.handleFn = func(in protocol.IncomingRequest) (string, error) {
		return "", protocol.ErrInvalidKey
	}

	w := env.postForm("/friends/v1/friend-request", url.Values{
		"version": {"2"},
		"url":     {"https://alice.example.com"},
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["code"] != "invalid_key" {
		t.Errorf("Expected the protocol error code, got %v", body)
	}
	if body["status"] != float64(http.StatusForbidden) {
		t.Errorf("Expected the status echoed in the body, got %v", body)
	}
}

func TestReceiveFriendRequest_OldVersionWithoutIdentity(t *testing.T) {
	env := newTestEnv()

	w := env.postForm("/friends/v1/friend-request", url.Values{
		"url": {"https://alice.example.com"},
		"key": {"k"},
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for an old protocol version, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["code"] != "unsupported_protocol_version" {
		t.Errorf("Expected the version error code, got %v", body)
	}
}

func TestReceiveFriendRequest_OldVersionRedirects(t *testing.T) {
	env := newTestEnv()
	env.indieauth.beginFn = func(ctx context.Context, me string) (string, error) {
		if me != "https://alice.example.com" {
			t.Errorf("Expected the identity URL passed through, got %q", me)
		}
		return "https://alice.example.com/auth?state=abc", nil
	}

	w := env.postForm("/friends/v1/friend-request", url.Values{
		"version": {"1"},
		"me":      {"https://alice.example.com"},
	})

	if w.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", w.Code)
	}
	if w.Header().Get("Location") != "https://alice.example.com/auth?state=abc" {
		t.Errorf("Expected the redirect location header, got %q", w.Header().Get("Location"))
	}
}

func TestReceiveAcceptFriendRequest(t *testing.T) {
	env := newTestEnv()
	env.handshake.confirmFn = func(in protocol.AcceptConfirmation) (string, error) {
		if in.RequestID != "corr-id-1" || in.Proof != "proof-value" || in.Key != "token-half-b" {
			t.Errorf("Form fields not passed through: %+v", in)
		}
		return "signature-value", nil
	}

	w := env.postForm("/friends/v1/accept-friend-request", url.Values{
		"request": {"corr-id-1"},
		"proof":   {"proof-value"},
		"key":     {"token-half-b"},
		"name":    {"Alice"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["signature"] != "signature-value" {
		t.Errorf("Expected the signature returned, got %v", body)
	}
}

func TestIndieAuthEndpoint(t *testing.T) {
	env := newTestEnv()
	env.indieauth.authorizeFn = func(params protocol.AuthorizeParams) (*protocol.AuthorizeResult, error) {
		if params.Scope != "create_account" || params.ClientID != "https://alice.example.com" {
			t.Errorf("Query parameters not passed through: %+v", params)
		}
		return &protocol.AuthorizeResult{State: params.State, Code: "issued-token"}, nil
	}

	req := httptest.NewRequest(http.MethodGet,
		"/friends/v1/indieauth?scope=create_account&client_id=https://alice.example.com&account_role=friend&state=their-state", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["code"] != "issued-token" || body["state"] != "their-state" {
		t.Errorf("Expected code and state in response, got %v", body)
	}
	if body["code_challenge_method"] != "S256" {
		t.Errorf("Expected the challenge method announced, got %v", body)
	}
}

func TestReceivePostDeleted(t *testing.T) {
	env := newTestEnv()
	env.handshake.postDeletedFn = func(token, auth, remotePostID string) (bool, error) {
		if token != "in-token" || auth != "verifier-1" || remotePostID != "17" {
			t.Errorf("Form fields not passed through: %q, %q, %q", token, auth, remotePostID)
		}
		return true, nil
	}

	w := env.postForm("/friends/v1/post-deleted", url.Values{
		"friend":  {"in-token"},
		"auth":    {"verifier-1"},
		"post_id": {"17"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["deleted"] != true {
		t.Errorf("Expected deleted true, got %v", body)
	}
}

func TestGetFeed_Public(t *testing.T) {
	env := newTestEnv()
	env.localPosts.CreateLocalPost(&database.LocalPost{
		ID: "post-1", Title: "Public", Content: "<p>Hi</p>",
		Status: database.StatusPublish, PublishedAt: time.Now().UTC(),
	})

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/rss+xml") {
		t.Errorf("Expected an rss content type, got %q", w.Header().Get("Content-Type"))
	}
	if len(env.localPosts.statuses) != 1 || env.localPosts.statuses[0] != database.StatusPublish {
		t.Errorf("An unauthenticated request must only see published posts, got %v", env.localPosts.statuses)
	}
	if strings.Contains(w.Body.String(), "friends:post-id") {
		t.Errorf("Public feed must not carry friends elements")
	}
}

func TestGetFeed_Authenticated(t *testing.T) {
	env := newTestEnv()
	env.handshake.authenticateFn = func(token, auth string) (*database.Friend, error) {
		if token == "valid-token" && auth == "verifier-1" {
			return &database.Friend{ID: "friend-1", Role: database.RoleFriend}, nil
		}
		return nil, nil
	}
	env.localPosts.CreateLocalPost(&database.LocalPost{
		ID: "post-1", Title: "Secret", Content: "<p>Hi</p>",
		Status: database.StatusPrivate, PublishedAt: time.Now().UTC(),
	})
	env.reactions.reactions["post-1"] = []database.Reaction{
		{PostID: "post-1", Slug: "2764", Count: 1, Usernames: "bob"},
	}

	req := httptest.NewRequest(http.MethodGet, "/feed?friend=valid-token&auth=verifier-1", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if len(env.localPosts.statuses) != 2 {
		t.Errorf("An authenticated request should also see private posts, got %v", env.localPosts.statuses)
	}
	output := w.Body.String()
	if !strings.Contains(output, "<friends:post-status>private</friends:post-status>") {
		t.Errorf("Expected the private post with its status, got %q", output)
	}
	if !strings.Contains(output, "friends:reaction") {
		t.Errorf("Expected stored reactions embedded, got %q", output)
	}
	if len(env.reactions.loaded) != 1 || env.reactions.loaded[0] != "post-1" {
		t.Errorf("Expected reactions loaded per post, got %v", env.reactions.loaded)
	}
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a wrong key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected a bearer token accepted, got %d", w.Code)
	}
}

func TestSendFriendRequestEndpoint(t *testing.T) {
	env := newTestEnv()
	env.handshake.sendFn = func(ctx context.Context, siteURL, message string) (*database.Friend, error) {
		return &database.Friend{
			ID:   "friend-1",
			URL:  siteURL,
			Role: database.RolePendingRequest,
		}, nil
	}

	w := env.adminRequest(http.MethodPost, "/api/friends", `{"url": "https://alice.example.com", "message": "hi"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["role"] != database.RolePendingRequest || body["confirmed"] != false {
		t.Errorf("Friend response wrong: %v", body)
	}

	w = env.adminRequest(http.MethodPost, "/api/friends", `{"message": "no url"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a url, got %d", w.Code)
	}
}

func TestAcceptFriendRequestEndpoint(t *testing.T) {
	env := newTestEnv()
	env.friends.friends["friend-1"] = &database.Friend{
		ID: "friend-1", URL: "https://alice.example.com", Role: database.RoleFriendRequest,
	}
	env.handshake.acceptFn = func(ctx context.Context, friendID string) error {
		env.friends.friends[friendID].Role = database.RoleFriend
		return nil
	}

	w := env.adminRequest(http.MethodPost, "/api/friends/friend-1/accept", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["role"] != database.RoleFriend {
		t.Errorf("Expected the accepted role returned, got %v", body)
	}

	w = env.adminRequest(http.MethodPost, "/api/friends/missing/accept", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown friend, got %d", w.Code)
	}
}

func TestSaveRules(t *testing.T) {
	env := newTestEnv()
	env.friends.friends["friend-1"] = &database.Friend{ID: "friend-1", URL: "https://alice.example.com"}

	w := env.adminRequest(http.MethodPut, "/api/friends/friend-1/rules", `{
		"catch_all": "replace",
		"rules": [
			{"field": "title", "regex": "spam", "action": "delete"},
			{"field": "bogus", "regex": "x", "action": "delete"},
			{"field": "title", "regex": "([", "action": "trash"}
		]
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["rules"] != float64(1) {
		t.Errorf("Expected the malformed rules dropped, got %v", body)
	}
	if body["catch_all"] != "accept" {
		t.Errorf("A non-terminal catch_all falls back to accept, got %v", body)
	}

	saved := env.rules.saved["friend-1"]
	if len(saved) != 1 || saved[0].Regex != "spam" {
		t.Errorf("Expected only the valid rule stored, got %+v", saved)
	}
	if env.friends.friends["friend-1"].CatchAll != "accept" {
		t.Errorf("Expected the catch_all persisted on the friend")
	}
}

func TestRefreshFriendEndpoint(t *testing.T) {
	env := newTestEnv()
	env.friends.friends["friend-1"] = &database.Friend{ID: "friend-1", URL: "https://alice.example.com"}

	w := env.adminRequest(http.MethodPost, "/api/friends/friend-1/refresh", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if len(env.scheduler.refreshed) != 1 || env.scheduler.refreshed[0] != "friend-1" {
		t.Errorf("Expected the refresh scheduled, got %v", env.scheduler.refreshed)
	}
}

func TestLocalPostLifecycle(t *testing.T) {
	env := newTestEnv()
	env.handshake.propagated = make(chan string, 1)

	w := env.adminRequest(http.MethodPost, "/api/posts", `{"title": "Hello", "content": "<p>World</p>"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("Expected the new post id, got %v", body)
	}
	if env.localPosts.posts[id].Status != database.StatusPublish {
		t.Errorf("Expected publish as the default status")
	}

	w = env.adminRequest(http.MethodDelete, "/api/posts/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if _, ok := env.localPosts.posts[id]; ok {
		t.Errorf("Expected the post deleted")
	}

	select {
	case propagated := <-env.handshake.propagated:
		if propagated != id {
			t.Errorf("Expected the deletion propagated for %q, got %q", id, propagated)
		}
	case <-time.After(time.Second):
		t.Errorf("Expected the deletion propagated to friends")
	}

	w = env.adminRequest(http.MethodDelete, "/api/posts/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an already deleted post, got %d", w.Code)
	}
}

func TestCreateLocalPost_InvalidStatus(t *testing.T) {
	env := newTestEnv()

	w := env.adminRequest(http.MethodPost, "/api/posts", `{"content": "x", "status": "draft"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unsupported status, got %d", w.Code)
	}
}

func TestSetSubscriptionActive(t *testing.T) {
	env := newTestEnv()
	env.subs.subscriptions = []database.Subscription{
		{ID: "sub-1", FriendID: "friend-1", URL: "https://alice.example.com/feed/", Parser: "rss", Active: true},
	}

	w := env.adminRequest(http.MethodPatch, "/api/subscriptions/sub-1", `{"active": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.subs.subscriptions[0].Active {
		t.Errorf("Expected the subscription paused")
	}

	w = env.adminRequest(http.MethodPatch, "/api/subscriptions/sub-1", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without an active flag, got %d", w.Code)
	}

	w = env.adminRequest(http.MethodPatch, "/api/subscriptions/missing", `{"active": true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown subscription, got %d", w.Code)
	}
}

func TestDiscoverEndpoint(t *testing.T) {
	env := newTestEnv()
	env.discovery.feeds = map[string]feed.FeedInfo{
		"https://alice.example.com/feed/": {
			URL:    "https://alice.example.com/feed/",
			Parser: "rss",
			Type:   "application/rss+xml",
		},
	}

	w := env.adminRequest(http.MethodGet, "/api/discover?url=https://alice.example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = env.adminRequest(http.MethodGet, "/api/discover", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a url, got %d", w.Code)
	}
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv()
	env.friends.friends["friend-1"] = &database.Friend{ID: "friend-1"}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from health, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from stats, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["friends"] != float64(1) {
		t.Errorf("Expected the friend count, got %v", body)
	}
}
