package client

import (
	"context"
	"log/slog"
	"sync"
)

// AuthState はSessionStoreの認証状態。
type AuthState int

const (
	// StateUnknown は初回の更新が完了するまでの初期状態。
	StateUnknown AuthState = iota
	// StateAnonymous は未認証が確定した状態。
	StateAnonymous
	// StateAuthenticated は認証済みの状態。
	StateAuthenticated
)

// SessionStore は「現在のユーザーは誰か」の単一の情報源。
// 認証プロバイダのプッシュイベントと明示的なRefreshの両方を
// 全置換として適用し、購読者に遷移を通知する。
//
// 隠れたパッケージレベルのシングルトンは持たず、構築したインスタンスを
// 依存として明示的に渡すこと。テストではAuthProviderのフェイクを注入する。
type SessionStore struct {
	auth AuthProvider

	mu        sync.Mutex
	state     AuthState
	current   *Session
	listeners map[int]func(SessionEvent)
	nextID    int

	detach func()
}

// NewSessionStore はSessionStoreを生成し、認証プロバイダの
// 状態変更イベントの購読を開始する。初期状態はUnknown。
func NewSessionStore(auth AuthProvider) *SessionStore {
	s := &SessionStore{
		auth:      auth,
		state:     StateUnknown,
		listeners: make(map[int]func(SessionEvent)),
	}
	s.detach = auth.OnAuthStateChange(func(ev SessionEvent) {
		s.apply(ev.Session)
	})
	return s
}

// Close は認証プロバイダの購読を解除する。
func (s *SessionStore) Close() {
	if s.detach != nil {
		s.detach()
	}
}

// Current は最後に判明しているセッションを返す。ネットワークI/Oで
// ブロックすることはない。初回Refresh完了まではnil。
func (s *SessionStore) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State は現在の認証状態を返す。
func (s *SessionStore) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh は権威的なセッションを取得して全置換する。
// 失敗しても既存のセッション値はそのまま維持される（後続の
// 購読イベントが最終的に訂正する）。
func (s *SessionStore) Refresh(ctx context.Context) (*Session, error) {
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		slog.Warn("session refresh failed, keeping last known session",
			slog.String("error", err.Error()),
		)
		return s.Current(), &AuthError{Op: "refresh", Err: err}
	}

	s.apply(sess)
	return s.Current(), nil
}

// SignOut はリモートのセッション無効化を要求し、結果にかかわらず
// ローカル状態をAnonymousに遷移させる。ユーザー操作としての
// サインアウトは常にローカルで成立して見えるべきであり、
// リモートの失敗はログに残すだけで握りつぶす。
func (s *SessionStore) SignOut(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		slog.Warn("remote sign-out failed, signing out locally anyway",
			slog.String("error", err.Error()),
		)
	}
	s.apply(nil)
}

// Subscribe は遷移イベントの購読を開始し、解除関数を返す。
// 解除関数は消費側の破棄時に必ず呼ぶこと。
func (s *SessionStore) Subscribe(fn func(SessionEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// apply はセッション値を全置換し、生じた遷移を購読者に通知する。
// Authenticated→Authenticated（subjectの変更を含む）は1回の
// REFRESHEDイベントで表現され、途中でAnonymousを観測させない。
func (s *SessionStore) apply(sess *Session) {
	s.mu.Lock()

	prevState := s.state
	var kind SessionEventKind
	switch {
	case sess != nil && prevState == StateAuthenticated:
		kind = SessionRefreshed
	case sess != nil:
		kind = SessionSignedIn
	default:
		kind = SessionSignedOut
	}

	// 既にAnonymousの状態での重複サインアウトは通知しない
	if sess == nil && prevState == StateAnonymous {
		s.mu.Unlock()
		return
	}

	if sess != nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateAnonymous
	}
	s.current = sess

	fns := make([]func(SessionEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	ev := SessionEvent{Kind: kind, Session: sess}
	for _, fn := range fns {
		fn(ev)
	}
}
