package controller

import (
	"context"
	"sync"
	"time"

	"toptracks/catalog"
	"toptracks/page"
	"toptracks/playback"

	log "github.com/sirupsen/logrus"
)

const reapInterval = time.Minute

// Session is one visitor: a page per board sharing a single playback deck.
type Session struct {
	ID     string
	Pages  map[string]*page.Page
	Player *playback.Deck
	Hub    *playback.Hub

	mutex    sync.Mutex
	lastSeen time.Time
	closed   bool
}

// Page returns the session's page for board, or nil.
func (s *Session) Page(board string) *page.Page {
	return s.Pages[board]
}

func (s *Session) LastSeen() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastSeen
}

// touch marks the session active. It fails once the session has been reaped.
func (s *Session) touch(now time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return false
	}
	s.lastSeen = now
	return true
}

// expire closes the session for touches if it has been idle past timeout.
func (s *Session) expire(now time.Time, timeout time.Duration) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed || now.Sub(s.lastSeen) <= timeout {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) close() {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()

	for _, p := range s.Pages {
		p.Close()
	}
	s.Hub.Close()
}

type Options struct {
	Fetcher page.Fetcher
	// Preferences returns the durable store for a session. Nil disables
	// persistence.
	Preferences func(sessionID string) page.PreferenceStore
	IdleTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
}

type Controller struct {
	// This is a map of session id to the visitor session
	sessions    map[string]*Session
	fetcher     page.Fetcher
	preferences func(sessionID string) page.PreferenceStore
	idleTimeout time.Duration
	loc         *time.Location
	now         func() time.Time
	mutex       sync.RWMutex
	logger      *log.Entry
}

func NewController(opts Options) *Controller {
	c := &Controller{
		sessions:    make(map[string]*Session),
		fetcher:     opts.Fetcher,
		preferences: opts.Preferences,
		idleTimeout: opts.IdleTimeout,
		loc:         opts.Location,
		now:         opts.Now,
		logger:      log.WithField("module", "controller"),
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = 30 * time.Minute
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// GetSession returns the session for id, mounting its pages on first use.
func (c *Controller) GetSession(id string) *Session {
	c.mutex.RLock()
	session, ok := c.sessions[id]
	c.mutex.RUnlock()
	if ok && session.touch(c.now()) {
		return session
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// a session reaped since the read above is already gone from the map
	if session, ok := c.sessions[id]; ok && session.touch(c.now()) {
		return session
	}

	session = &Session{
		ID:       id,
		Pages:    make(map[string]*page.Page),
		Player:   playback.NewDeck(),
		Hub:      playback.NewHub(),
		lastSeen: c.now(),
	}
	session.Player.Bind(session.Hub)

	for _, board := range catalog.Boards() {
		opts := []page.Option{page.WithClock(c.now), page.WithLocation(c.loc)}
		if board.Persists() && c.preferences != nil {
			opts = append(opts, page.WithPreferences(c.preferences(id)))
		}
		p := page.New(board, c.fetcher, session.Player, opts...)

		boardID := board.ID
		hub := session.Hub
		p.OnChange(func() {
			hub.Publish(playback.Event{Type: playback.EventBoardUpdated, Board: boardID})
		})
		session.Pages[board.ID] = p
	}

	c.sessions[id] = session
	c.logger.WithField("session", id).Debug("session created")
	return session
}

// Lookup returns an existing session without creating one.
func (c *Controller) Lookup(id string) (*Session, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	session, ok := c.sessions[id]
	return session, ok
}

// Touch marks the session as active.
func (c *Controller) Touch(id string) {
	if session, ok := c.Lookup(id); ok {
		session.touch(c.now())
	}
}

func (c *Controller) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.sessions)
}

// Reap closes every session idle for longer than the idle timeout and returns
// how many were removed.
func (c *Controller) Reap(now time.Time) int {
	c.mutex.Lock()
	var expired []*Session
	for id, session := range c.sessions {
		if session.expire(now, c.idleTimeout) {
			expired = append(expired, session)
			delete(c.sessions, id)
		}
	}
	c.mutex.Unlock()

	for _, session := range expired {
		session.close()
		c.logger.WithField("session", session.ID).Debug("session reaped")
	}
	if len(expired) > 0 {
		c.logger.Infof("reaped %d idle sessions", len(expired))
	}
	return len(expired)
}

// Run reaps idle sessions once a minute until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Reap(c.now())
		}
	}
}

// Close tears down every session.
func (c *Controller) Close() {
	c.mutex.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.mutex.Unlock()

	for _, session := range sessions {
		session.close()
	}
}

// Stats sums websocket listeners across sessions.
func (c *Controller) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	stats := Stats{Sessions: len(c.sessions)}
	for _, session := range c.sessions {
		stats.WSClients += session.Hub.Stats().WSClients
	}
	return stats
}

type Stats struct {
	Sessions  int `json:"sessions"`
	WSClients int `json:"ws_clients"`
}
