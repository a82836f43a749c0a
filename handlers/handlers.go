package handlers

// handlers expose the ranking boards over http: server-rendered pages with
// form posts for every interaction, a json api mirroring them, and a
// websocket per session that streams playback and board updates.

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"toptracks/catalog"
	"toptracks/controller"
	"toptracks/database"
	"toptracks/models"
	"toptracks/page"
	"toptracks/pages"
	"toptracks/playback"
	"toptracks/youtube"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	SessionCookie = "toptracks_session"
	sessionMaxAge = 365 * 24 * 60 * 60
	sessionKey    = "session"
	historyLimit  = 20
)

type Manager struct {
	Controller *controller.Controller
	DB         *database.Database
	RenderWait time.Duration
	logger     *log.Entry
}

func NewManager(ctrl *controller.Controller, db *database.Database, renderWait time.Duration) *Manager {
	return &Manager{
		Controller: ctrl,
		DB:         db,
		RenderWait: renderWait,
		logger:     log.WithField("module", "handlers"),
	}
}

// playRequest addresses a row by its position in the rendered list.
type playRequest struct {
	Index *int `json:"index" form:"index" binding:"required"`
}

type playerRequest struct {
	Video string `json:"video" binding:"required"`
}

// RegisterRoutes mounts every route on router, including its HTML templates.
func (m *Manager) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(pages.Templates())

	router.GET("/health", m.handleHealth)
	router.GET("/ready", m.handleReady)

	visitor := router.Group("/", m.sessionMiddleware)
	visitor.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/"+catalog.KoreaBoard)
	})
	visitor.GET("/ws", m.handleWebsocket)

	api := visitor.Group("/api")
	api.GET("/boards/:board", m.handleBoardJSON)
	api.POST("/boards/:board/play", m.handlePlayJSON)
	api.GET("/boards/:board/top", m.handleMostPlayed)
	api.GET("/player", m.handleGetPlayer)
	api.POST("/player", m.handleSetPlayer)
	api.GET("/history", m.handleHistory)

	visitor.GET("/:board", m.handleBoardPage)
	visitor.POST("/:board/category", m.handleSelectCategory)
	visitor.POST("/:board/date", m.handleSelectDate)
	visitor.POST("/:board/refresh", m.handleRefresh)
	visitor.POST("/:board/play", m.handlePlay)
}

// sessionMiddleware resolves the visitor cookie to a controller session,
// issuing a fresh id when the cookie is missing or malformed.
func (m *Manager) sessionMiddleware(c *gin.Context) {
	id, err := c.Cookie(SessionCookie)
	if err == nil {
		_, err = uuid.Parse(id)
	}
	if err != nil {
		id = uuid.NewString()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, sessionMaxAge, "/", "", false, true)
	c.Set(sessionKey, m.Controller.GetSession(id))
	c.Next()
}

func session(c *gin.Context) *controller.Session {
	return c.MustGet(sessionKey).(*controller.Session)
}

// boardPage resolves :board, answering 404 itself when it is unknown.
func (m *Manager) boardPage(c *gin.Context) (*controller.Session, *page.Page, bool) {
	board, err := catalog.Lookup(c.Param("board"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	s := session(c)
	p := s.Page(board.ID)
	if p == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "board not mounted"})
		return nil, nil, false
	}
	return s, p, true
}

// applyQuery lets a link select a category and date before rendering.
func (m *Manager) applyQuery(c *gin.Context, p *page.Page) bool {
	if id, ok := c.GetQuery("category"); ok {
		if err := p.SelectCategory(id); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return false
		}
	}
	if date, ok := c.GetQuery("date"); ok {
		p.SelectDate(date)
	}
	return true
}

// settle gives an in-flight fetch up to RenderWait to finish.
func (m *Manager) settle(c *gin.Context, p *page.Page) {
	if m.RenderWait <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), m.RenderWait)
	defer cancel()
	if err := p.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		m.logger.Debugf("render wait interrupted: %v", err)
	}
}

func (m *Manager) handleBoardPage(c *gin.Context) {
	s, p, ok := m.boardPage(c)
	if !ok || !m.applyQuery(c, p) {
		return
	}
	m.settle(c, p)

	view := p.View()
	c.HTML(http.StatusOK, pages.BoardTemplate, gin.H{
		"View":        view,
		"Boards":      catalog.Boards(),
		"Refresh":     view.Mode == page.ModeLoading,
		"ActiveTrack": s.Player.ActiveTrack(),
	})
}

func (m *Manager) handleBoardJSON(c *gin.Context) {
	_, p, ok := m.boardPage(c)
	if !ok || !m.applyQuery(c, p) {
		return
	}
	m.settle(c, p)
	c.JSON(http.StatusOK, p.View())
}

func (m *Manager) handleSelectCategory(c *gin.Context) {
	_, p, ok := m.boardPage(c)
	if !ok {
		return
	}
	if err := p.SelectCategory(c.PostForm("id")); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusSeeOther, "/"+p.Board().ID)
}

func (m *Manager) handleSelectDate(c *gin.Context) {
	_, p, ok := m.boardPage(c)
	if !ok {
		return
	}
	p.SelectDate(c.PostForm("date"))
	c.Redirect(http.StatusSeeOther, "/"+p.Board().ID)
}

func (m *Manager) handleRefresh(c *gin.Context) {
	_, p, ok := m.boardPage(c)
	if !ok {
		return
	}
	p.Refresh()
	c.Redirect(http.StatusSeeOther, "/"+p.Board().ID)
}

func (m *Manager) handlePlay(c *gin.Context) {
	s, p, ok := m.boardPage(c)
	if !ok {
		return
	}
	var req playRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid row index"})
		return
	}
	m.play(c, s, p, *req.Index)
	c.Redirect(http.StatusSeeOther, "/"+p.Board().ID)
}

func (m *Manager) handlePlayJSON(c *gin.Context) {
	s, p, ok := m.boardPage(c)
	if !ok {
		return
	}
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid row index"})
		return
	}
	entry, played := m.play(c, s, p, *req.Index)
	c.JSON(http.StatusOK, gin.H{
		"played":  played,
		"videoId": s.Player.ActiveTrack(),
		"entry":   entry,
	})
}

// play forwards a row click to the session deck and records it.
func (m *Manager) play(c *gin.Context, s *controller.Session, p *page.Page, index int) (models.RankingEntry, bool) {
	entry, played := p.Play(index)
	if !played {
		return entry, false
	}

	sel := p.Selection()
	err := m.DB.RecordPlay(database.PlayRecord{
		SessionID: s.ID,
		Board:     p.Board().ID,
		Category:  sel.Category,
		ChartDate: sel.Date,
		Ranking:   entry.Ranking,
		VideoID:   entry.YoutubeID,
		Title:     entry.Title,
		Artist:    entry.Artist,
	})
	if err != nil {
		m.logger.WithField("session", s.ID).Errorf("failed to record play: %v", err)
		m.capture(c, err)
	}
	return entry, true
}

func (m *Manager) handleMostPlayed(c *gin.Context) {
	board, err := catalog.Lookup(c.Param("board"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	records, err := m.DB.GetMostPlayed(board.ID, queryLimit(c))
	if err != nil {
		m.capture(c, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load most played"})
		return
	}
	if records == nil {
		records = []database.MostPlayedRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"board": board.ID, "tracks": records})
}

func (m *Manager) handleGetPlayer(c *gin.Context) {
	deck := session(c).Player
	videoID := deck.ActiveTrack()
	resp := gin.H{"videoId": videoID}
	if videoID != "" {
		resp["watchUrl"] = youtube.WatchURL(videoID)
		resp["embedUrl"] = youtube.EmbedURL(videoID)
		resp["changedAt"] = deck.ChangedAt()
	}
	c.JSON(http.StatusOK, resp)
}

// handleSetPlayer points the deck at a video outside any board, given an id
// or a YouTube link.
func (m *Manager) handleSetPlayer(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "video is required"})
		return
	}
	videoID := youtube.ParseVideoID(req.Video)
	if videoID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "not a YouTube video"})
		return
	}
	session(c).Player.SetActiveTrack(videoID)
	c.JSON(http.StatusOK, gin.H{"videoId": videoID})
}

func (m *Manager) handleHistory(c *gin.Context) {
	s := session(c)
	records, err := m.DB.GetHistory(s.ID, queryLimit(c))
	if err != nil {
		m.capture(c, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if records == nil {
		records = []database.PlayRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"plays": records})
}

func (m *Manager) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Manager) handleReady(c *gin.Context) {
	stats := m.Controller.Stats()
	if err := m.DB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"db_error":   err.Error(),
			"sessions":   stats.Sessions,
			"ws_clients": stats.WSClients,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"db":         "ok",
		"sessions":   stats.Sessions,
		"ws_clients": stats.WSClients,
	})
}

func (m *Manager) handleWebsocket(c *gin.Context) {
	s := session(c)
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Debugf("websocket upgrade failed: %v", err)
		return
	}

	_ = ws.WriteJSON(playback.Event{
		Type:    playback.EventWelcome,
		VideoID: s.Player.ActiveTrack(),
		At:      time.Now().UTC(),
	})
	s.Hub.Add(ws)
	m.logger.WithField("session", s.ID).Debug("websocket connected")

	// incoming messages are ignored; the read loop only detects disconnects
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.Hub.Remove(ws)
	m.logger.WithField("session", s.ID).Debug("websocket disconnected")
}

func (m *Manager) capture(c *gin.Context, err error) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(historyLimit)))
	if err != nil || limit <= 0 {
		return historyLimit
	}
	return min(limit, 100)
}
