package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"peerpress/app/cfg"
	"peerpress/app/database"
)

const (
	tokenValidity = 24 * time.Hour
	stateValidity = 20 * time.Minute
)

// authState is the transient bookkeeping of an outgoing IndieAuth flow.
type authState struct {
	Me      string
	expires time.Time
}

// stateStore keeps pending IndieAuth states in memory. States are single
// use and expire after twenty minutes.
type stateStore struct {
	mu     sync.Mutex
	states map[string]authState
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[string]authState)}
}

func (s *stateStore) Put(state string, data authState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data.expires = time.Now().Add(stateValidity)
	for key, existing := range s.states {
		if existing.expires.Before(time.Now()) {
			delete(s.states, key)
		}
	}
	s.states[state] = data
}

func (s *stateStore) Take(state string) (authState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.states[state]
	if !ok {
		return authState{}, false
	}
	delete(s.states, state)
	if data.expires.Before(time.Now()) {
		return authState{}, false
	}
	return data, true
}

// IndieAuth implements the PKCE-based fallback handshake used with sites
// that do not speak the native friend request protocol.
type IndieAuth struct {
	friends database.FriendRepository
	tokens  database.TokenRepository
	http    *http.Client
	states  *stateStore
	logger  *slog.Logger
}

func NewIndieAuth(friends database.FriendRepository, tokens database.TokenRepository, httpClient *http.Client) *IndieAuth {
	return &IndieAuth{
		friends: friends,
		tokens:  tokens,
		http:    httpClient,
		states:  newStateStore(),
		logger:  slog.Default().With("component", "indieauth"),
	}
}

// BeginRedirect handles a friend request from a peer speaking an older
// protocol: it discovers the authorization endpoint behind the given
// identity URL and builds the redirect that starts a PKCE flow there.
func (i *IndieAuth) BeginRedirect(ctx context.Context, me string) (string, error) {
	rels, err := i.fetchRels(ctx, me)
	if err != nil {
		return "", err
	}

	authURL := pickEndpoint(rels, "authorization_endpoint")
	tokenURL := pickEndpoint(rels, "token_endpoint")
	if authURL == "" || tokenURL == "" {
		return "", errInvalid("no_indieauth", "Couldn't find the IndieAuth endpoints.")
	}

	state := GenerateToken(StateLength)
	verifier := GenerateToken(VerifierLength)
	c := cfg.Get()
	redirectURI := c.BaseUrl + "/friends/v1/indieauth"

	i.states.Put(state, authState{Me: me})

	query := url.Values{
		"response_type":         {"code"},
		"state":                 {state},
		"client_id":             {c.BaseUrl},
		"scope":                 {"create_account"},
		"account_role":          {"friend"},
		"code_challenge":        {ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
		"redirect_uri":          {redirectURI},
	}

	separator := "?"
	if strings.Contains(authURL, "?") {
		separator = "&"
	}
	return authURL + separator + query.Encode(), nil
}

// AuthorizeParams are the query parameters of an incoming authorization
// request.
type AuthorizeParams struct {
	State               string
	Code                string
	Scope               string
	ClientID            string
	AccountRole         string
	Me                  string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeResult is the response to a successful authorization request.
type AuthorizeResult struct {
	State string
	Code  string
}

// Authorize handles the two legs of the receiving side. With a known state
// it confirms a flow this site started earlier and creates the friend; with
// a create_account scope it issues a token to an already known friend. The
// issued token is bound to the presented code challenge.
func (i *IndieAuth) Authorize(params AuthorizeParams) (*AuthorizeResult, error) {
	if params.State != "" {
		if state, ok := i.states.Take(params.State); ok {
			return i.confirmStartedFlow(state, params)
		}
	}

	for _, scope := range strings.Fields(params.Scope) {
		if scope == "create_account" {
			return i.createAccount(params)
		}
	}

	return nil, errInvalid("unsupported_request", "Unsupported authorization request.")
}

func (i *IndieAuth) confirmStartedFlow(state authState, params AuthorizeParams) (*AuthorizeResult, error) {
	if params.Code == "" {
		return nil, errInvalid("code_missing", "No code was provided.")
	}

	siteURL := strings.TrimRight(state.Me, "/")
	friend, err := i.friends.GetFriendByURL(siteURL)
	if err != nil {
		return nil, err
	}
	if friend == nil {
		friend = &database.Friend{
			ID:          uuid.NewString(),
			URL:         siteURL,
			DisplayName: siteURL,
			Role:        database.RoleFriendRequest,
		}
		if err := i.friends.CreateFriend(friend); err != nil {
			return nil, err
		}
	}

	token, err := i.issueToken(friend, params.CodeChallengeMethod, params.CodeChallenge)
	if err != nil {
		return nil, err
	}

	i.logger.Info("IndieAuth flow confirmed", "url", siteURL)
	return &AuthorizeResult{Code: token.Token}, nil
}

func (i *IndieAuth) createAccount(params AuthorizeParams) (*AuthorizeResult, error) {
	if params.AccountRole != "friend" {
		return nil, errInvalid("not_a_friend_request", "We can only handle friend requests.")
	}
	if params.ClientID == "" {
		return nil, errInvalid("unknown_user", "Sorry, we don't have you on record.")
	}

	friend, err := i.friends.GetFriendByURL(strings.TrimRight(params.ClientID, "/"))
	if err != nil {
		return nil, err
	}
	if friend == nil {
		return nil, errInvalid("unknown_user", "Sorry, we don't have you on record.")
	}
	switch friend.Role {
	case database.RoleFriend, database.RoleAcquaintance, database.RoleRestrictedFriend, database.RolePendingRequest:
	default:
		return nil, errInvalid("invalid_state", "Sorry, we haven't been waiting for your request.")
	}

	token, err := i.issueToken(friend, params.CodeChallengeMethod, params.CodeChallenge)
	if err != nil {
		return nil, err
	}

	return &AuthorizeResult{State: params.State, Code: token.Token}, nil
}

func (i *IndieAuth) issueToken(friend *database.Friend, challengeMethod, challenge string) (*database.Token, error) {
	token := &database.Token{
		Token:         GenerateToken(TokenLength),
		FriendID:      friend.ID,
		ValidUntil:    time.Now().Add(tokenValidity),
		CodeChallenge: SanitizeCodeChallenge(challengeMethod + "$" + challenge),
	}
	if err := i.tokens.SaveToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

// fetchRels collects the link relations advertised at a URL.
func (i *IndieAuth) fetchRels(ctx context.Context, pageURL string) (map[string][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", cfg.Get().UserAgent)

	resp, err := i.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	rels := make(map[string][]string)
	doc.Find("link[rel][href], a[rel][href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		relAttr, _ := sel.Attr("rel")
		for _, rel := range strings.Fields(relAttr) {
			rels[rel] = append(rels[rel], resolveURL(href, pageURL))
		}
	})
	return rels, nil
}

// pickEndpoint prefers endpoints under the advertised friends base URL when
// a page lists several.
func pickEndpoint(rels map[string][]string, name string) string {
	candidates := rels[name]
	if len(candidates) == 0 {
		return ""
	}
	for _, base := range rels["friends-base-url"] {
		for _, candidate := range candidates {
			if strings.HasPrefix(candidate, base) {
				return candidate
			}
		}
	}
	return candidates[0]
}

func resolveURL(href, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
