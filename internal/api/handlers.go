package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	HostName string `json:"host_name"`
	Team     string `json:"team"`
	IsPublic *bool  `json:"is_public"`
}

type joinRoomRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
	Team     string `json:"team"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type settingsRequest struct {
	Code          string      `json:"code"`
	TimerDuration json.Number `json:"timer_duration"`
}

type bidRequest struct {
	Code   string      `json:"code"`
	Team   string      `json:"team"`
	Amount json.Number `json:"amount"`
}

type messageRequest struct {
	Code    string `json:"code"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type lineupRequest struct {
	Code      string  `json:"code"`
	Team      string  `json:"team"`
	PlayerIDs []int64 `json:"player_ids"`
}

type chatResponse struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type logResponse struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

// bind decodes the JSON body into dst, answering 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "Invalid request body")
		return false
	}
	return true
}

// number parses a JSON number that must be a whole value.
func number(n json.Number) (int, bool) {
	if n == "" {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != float64(int64(f)) {
			return 0, false
		}
		v = int64(f)
	}
	return int(v), true
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms, err := h.auction.ListRooms(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) listPlayers(c *gin.Context) {
	players, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (h *Handler) createRoom(c *gin.Context) {
	var req createRoomRequest
	if !bind(c, &req) {
		return
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	r, err := h.auction.CreateRoom(c.Request.Context(), strings.TrimSpace(req.HostName), strings.TrimSpace(req.Team), public)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": r.Code})
}

func (h *Handler) joinRoom(c *gin.Context) {
	var req joinRoomRequest
	if !bind(c, &req) {
		return
	}
	if req.Code == "" || req.Username == "" || req.Team == "" {
		badRequest(c, "Missing data")
		return
	}
	if err := h.auction.JoinRoom(c.Request.Context(), req.Code, req.Username, req.Team); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Joined successfully"})
}

func (h *Handler) startAuction(c *gin.Context) {
	var req codeRequest
	if !bind(c, &req) {
		return
	}
	s, err := h.auction.Start(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) pauseAuction(c *gin.Context) {
	var req codeRequest
	if !bind(c, &req) {
		return
	}
	paused, timer, err := h.auction.TogglePause(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_paused": paused, "timer": timer})
}

func (h *Handler) updateSettings(c *gin.Context) {
	var req settingsRequest
	if !bind(c, &req) {
		return
	}
	secs, ok := number(req.TimerDuration)
	if !ok {
		badRequest(c, "Invalid timer value")
		return
	}
	timer, err := h.auction.UpdateSettings(c.Request.Context(), req.Code, secs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated", "timer": timer})
}

func (h *Handler) placeBid(c *gin.Context) {
	var req bidRequest
	if !bind(c, &req) {
		return
	}
	amount, ok := number(req.Amount)
	if !ok {
		badRequest(c, "Invalid bid amount")
		return
	}
	timer, err := h.auction.PlaceBid(c.Request.Context(), req.Code, req.Team, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bid accepted", "new_timer": timer})
}

func (h *Handler) sellPlayer(c *gin.Context) {
	var req codeRequest
	if !bind(c, &req) {
		return
	}
	hasNext, err := h.auction.Sell(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !hasNext {
		c.JSON(http.StatusOK, gin.H{"message": "Auction complete - no more players"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Player sold, moved to next"})
}

func (h *Handler) skipPlayer(c *gin.Context) {
	var req codeRequest
	if !bind(c, &req) {
		return
	}
	if err := h.auction.Skip(c.Request.Context(), req.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Player skipped", "status": "SKIPPED"})
}

func (h *Handler) endAuction(c *gin.Context) {
	var req codeRequest
	if !bind(c, &req) {
		return
	}
	qualified, err := h.auction.EndAuction(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "Auction ended. Qualified teams can now select their playing XI.",
		"qualified_count": qualified,
	})
}

func (h *Handler) submitLineup(c *gin.Context) {
	var req lineupRequest
	if !bind(c, &req) {
		return
	}
	status, err := h.auction.SubmitLineup(c.Request.Context(), req.Code, req.Team, req.PlayerIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Team submitted successfully", "status": status})
}

func (h *Handler) roomState(c *gin.Context) {
	s, err := h.auction.State(c.Request.Context(), c.Param("code"), c.Query("team"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) checkQualification(c *gin.Context) {
	rows, err := h.auction.Qualification(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req messageRequest
	if !bind(c, &req) {
		return
	}
	if _, err := h.chat.Send(c.Request.Context(), req.Code, req.Sender, req.Message); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handler) chatMessages(c *gin.Context) {
	msgs, err := h.chat.List(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]chatResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatResponse{
			Sender:    m.Sender,
			Message:   m.Message,
			Timestamp: m.CreatedAt.Format(time.TimeOnly),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) myTeam(c *gin.Context) {
	squad, err := h.auction.Squad(c.Request.Context(), c.Param("code"), c.Param("team"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, squad)
}

func (h *Handler) summary(c *gin.Context) {
	teams, err := h.auction.Summary(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

func (h *Handler) upcomingPlayers(c *gin.Context) {
	players, err := h.auction.Upcoming(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (h *Handler) unsoldPlayers(c *gin.Context) {
	players, err := h.auction.Unsold(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (h *Handler) winner(c *gin.Context) {
	board, err := h.auction.Winner(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *Handler) logs(c *gin.Context) {
	lines, err := h.auction.Logs(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]logResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, logResponse{Time: l.Time.Format(time.TimeOnly), Message: l.Message})
	}
	c.JSON(http.StatusOK, out)
}

