package client

import "fmt"

// AuthError はセッションの取得・更新・サインアウトがトランスポートまたは
// 認証情報のレベルで失敗したことを表す。SessionStoreは最後の既知の値を
// 保持するため、このエラーでセッションが失われることはない。
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError はフィードの一括取得や未読チェックなどの読み取りが
// 失敗したことを表す。コアは自動リトライしない。
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SubmissionError は楽観的なローカル変更の後にリモート呼び出しが
// 失敗したことを表す。ロールバックはSubmitter側で適用済みであり、
// 呼び出し元は表示上のエラー処理のみ行えばよい。
type SubmissionError struct {
	Op        string
	ClientRef string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission %s failed: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
