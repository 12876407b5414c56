package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// httpRequestTimeout はHTTPProviderの1リクエストのタイムアウト。
const httpRequestTimeout = 15 * time.Second

// HTTPProvider はcraftboardサービスのREST APIに対する
// AuthProvider/QueryProviderの実装。
//
// セッションCookieはcookie jarで保持され、CSRFトークンは
// 初回の変更系リクエスト前に /api/csrf-token から取得して
// X-CSRF-Tokenヘッダーで送出する。
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	csrfToken string
	listeners map[int]func(SessionEvent)
	nextID    int
}

var (
	_ AuthProvider  = (*HTTPProvider)(nil)
	_ QueryProvider = (*HTTPProvider)(nil)
)

// NewHTTPProvider はbaseURL（例 http://localhost:8080）に対する
// HTTPProviderを生成する。
func NewHTTPProvider(baseURL string) (*HTTPProvider, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: httpRequestTimeout,
		},
		listeners: make(map[int]func(SessionEvent)),
	}, nil
}

// apiError はサービスの統一エラーレスポンス。
type apiError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// currentUser は /auth/me などが返すユーザー情報。
type currentUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// wireComment はコメントAPIのレスポンス行。
type wireComment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	ClientRef  string    `json:"client_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *wireComment) toFeedItem() FeedItem {
	return FeedItem{
		ID:         c.ID,
		ParentKey:  c.PostID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Body:       c.Content,
		ClientRef:  c.ClientRef,
		CreatedAt:  c.CreatedAt,
	}
}

// GetSession は GET /auth/me で権威的なセッションを取得する。
// 401は「未認証」であってエラーではない。
func (p *HTTPProvider) GetSession(ctx context.Context) (*Session, error) {
	resp, err := p.do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var user currentUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return toSession(&user), nil
}

// SignIn は POST /auth/login でサインインし、SIGNED_INイベントを発火する。
func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := p.do(ctx, http.MethodPost, "/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var user currentUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	sess := toSession(&user)
	p.notify(SessionEvent{Kind: SessionSignedIn, Session: sess})
	return sess, nil
}

// SignOut は POST /auth/logout でセッションを破棄し、
// SIGNED_OUTイベントを発火する。
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}

	p.notify(SessionEvent{Kind: SessionSignedOut})
	return nil
}

// OnAuthStateChange は状態遷移コールバックを登録する。
// HTTPトランスポートはサーバープッシュを持たないため、イベントは
// このプロバイダ自身のSignIn/SignOut呼び出しから発火される。
func (p *HTTPProvider) OnAuthStateChange(fn func(SessionEvent)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// ListItems は GET /api/posts/{parentKey}/comments でフィード全件を返す。
func (p *HTTPProvider) ListItems(ctx context.Context, parentKey string) ([]FeedItem, error) {
	resp, err := p.do(ctx, http.MethodGet, "/api/posts/"+parentKey+"/comments", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var payload struct {
		Comments []wireComment `json:"comments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode comments response: %w", err)
	}

	items := make([]FeedItem, 0, len(payload.Comments))
	for i := range payload.Comments {
		items = append(items, payload.Comments[i].toFeedItem())
	}
	return items, nil
}

// InsertItem は POST /api/posts/{parentKey}/comments でレコードを作成する。
// clientRefはサーバーに保存され、レスポンスとリアルタイム配信の
// 両方で同じ値が返る。
func (p *HTTPProvider) InsertItem(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error) {
	body := map[string]string{
		"content":    draft.Body,
		"client_ref": clientRef,
	}
	resp, err := p.do(ctx, http.MethodPost, "/api/posts/"+parentKey+"/comments", body)
	if err != nil {
		return FeedItem{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return FeedItem{}, decodeAPIError(resp)
	}

	var created wireComment
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return FeedItem{}, fmt.Errorf("failed to decode created comment: %w", err)
	}
	return created.toFeedItem(), nil
}

// DeleteItem は DELETE /api/comments/{id} でレコードを削除する。
func (p *HTTPProvider) DeleteItem(ctx context.Context, id string) error {
	resp, err := p.do(ctx, http.MethodDelete, "/api/comments/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// LatestCreatedAt は GET /api/announcements/latest で最新の
// created_atのみを取得する。フィードが空の場合は(nil, nil)。
func (p *HTTPProvider) LatestCreatedAt(ctx context.Context) (*time.Time, error) {
	resp, err := p.do(ctx, http.MethodGet, "/api/announcements/latest", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var payload struct {
		LatestCreatedAt *time.Time `json:"latest_created_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode latest response: %w", err)
	}
	return payload.LatestCreatedAt, nil
}

// Ticket は POST /api/realtime/ticket でWebSocket接続チケットを取得する。
func (p *HTTPProvider) Ticket(ctx context.Context, topic string) (string, error) {
	body := map[string]string{"topic": topic}
	resp, err := p.do(ctx, http.MethodPost, "/api/realtime/ticket", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	var payload struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode ticket response: %w", err)
	}
	return payload.Ticket, nil
}

// BaseURL はバインド先サービスのベースURLを返す。
func (p *HTTPProvider) BaseURL() string {
	return p.baseURL
}

// do はリクエストを組み立てて実行する。変更系メソッドでは
// CSRFトークンを取得してヘッダーに付与する。
func (p *HTTPProvider) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if method != http.MethodGet && method != http.MethodHead {
		token, err := p.ensureCSRFToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-CSRF-Token", token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	return resp, nil
}

// ensureCSRFToken は未取得の場合に /api/csrf-token からトークンを取得する。
// トークンはCookieとしてjarにも保存されるため、以後のリクエストで
// ダブルサブミット検証が成立する。
func (p *HTTPProvider) ensureCSRFToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	token := p.csrfToken
	p.mu.Unlock()
	if token != "" {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build csrf request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("csrf token endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode csrf response: %w", err)
	}

	p.mu.Lock()
	p.csrfToken = payload.Token
	p.mu.Unlock()
	return payload.Token, nil
}

func (p *HTTPProvider) notify(ev SessionEvent) {
	p.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func toSession(user *currentUser) *Session {
	return &Session{
		SubjectID: user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
	}
}

// decodeAPIError はエラーレスポンスのボディを統一エラー形式として読む。
// 形式が合わない場合はステータスコードのみのエラーにフォールバックする。
func decodeAPIError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return &apiErr
}
