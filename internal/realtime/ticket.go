package realtime

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TicketIssuer はWebSocket接続用の短命チケットを発行・検証する。
// WebSocketはカスタムヘッダーを送れないため、HTTP APIで発行したチケットを
// クエリパラメータで渡して認証する。チケットはJWTで、トピックと
// ユーザーIDを含み、数十秒で失効する。
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTicketIssuer はTicketIssuerを生成する。
func NewTicketIssuer(secret string, ttl time.Duration) *TicketIssuer {
	return &TicketIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// ticketClaims はチケットJWTのクレーム。
type ticketClaims struct {
	Topic string `json:"topic"`
	jwt.RegisteredClaims
}

// Issue は指定トピック用の接続チケットを発行する。
func (t *TicketIssuer) Issue(userID, topic string) (string, error) {
	if err := ValidateTopic(topic); err != nil {
		return "", err
	}

	now := time.Now()
	claims := ticketClaims{
		Topic: topic,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign ticket: %w", err)
	}
	return signed, nil
}

// Verify はチケットを検証し、ユーザーIDとトピックを返す。
// 期限切れ・署名不正・アルゴリズム不一致はエラー。
func (t *TicketIssuer) Verify(ticket string) (userID, topic string, err error) {
	claims := &ticketClaims{}

	parsed, err := jwt.ParseWithClaims(ticket, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("invalid ticket: %w", err)
	}
	if !parsed.Valid {
		return "", "", fmt.Errorf("invalid ticket")
	}

	if err := ValidateTopic(claims.Topic); err != nil {
		return "", "", fmt.Errorf("invalid ticket topic: %w", err)
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("ticket missing subject")
	}

	return claims.Subject, claims.Topic, nil
}
