package handler

import (
	"encoding/json"
	"net/http"

	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/realtime"
)

// TicketIssuerInterface はリアルタイム接続チケットの発行インターフェース。
type TicketIssuerInterface interface {
	// Issue は指定トピック用の短命チケットを発行する。
	Issue(userID, topic string) (string, error)
}

// TicketHandler はWebSocket接続チケット発行のHTTPハンドラー。
// WebSocketハンドシェイクはカスタムヘッダーを送れないため、
// 認証済みHTTPリクエストでチケットを発行し、接続時にクエリパラメータで渡す。
type TicketHandler struct {
	issuer TicketIssuerInterface
}

// NewTicketHandler はTicketHandlerを生成する。
func NewTicketHandler(issuer TicketIssuerInterface) *TicketHandler {
	return &TicketHandler{issuer: issuer}
}

// ticketRequest はチケット発行リクエストのボディ。
type ticketRequest struct {
	Topic string `json:"topic"`
}

// ticketResponse はチケット発行のレスポンス。
type ticketResponse struct {
	Ticket string `json:"ticket"`
}

// IssueTicket はリアルタイム購読用のチケットを発行する。
// POST /api/realtime/ticket
// トピックは comments:{投稿ID} または announcements のいずれか。
func (h *TicketHandler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := realtime.ValidateTopic(req.Topic); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidTopicError(req.Topic))
		return
	}

	ticket, err := h.issuer.Issue(userID, req.Topic)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ticketResponse{Ticket: ticket})
}
