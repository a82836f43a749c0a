package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"toptracks/catalog"
	"toptracks/models"
	"toptracks/rankings"
	"toptracks/sentryhelper"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownCategory = errors.New("unknown category")

type Fetcher interface {
	Fetch(ctx context.Context, board, category, date string) ([]models.RankingEntry, error)
}

// PreferenceStore is durable key/value storage for a single visitor.
type PreferenceStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Playback is the shared "what is playing" cell the list forwards clicks to.
type Playback interface {
	ActiveTrack() string
	SetActiveTrack(id string)
}

// Result is the outcome of the latest fetch. Loading wins over Error, which
// wins over Entries.
type Result struct {
	Entries []models.RankingEntry
	Loading bool
	Error   string
}

type Option func(*Page)

func WithClock(now func() time.Time) Option {
	return func(p *Page) { p.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(p *Page) { p.loc = loc }
}

// WithPreferences persists the category for boards that declare a
// preference key. Boards without one ignore the store.
func WithPreferences(prefs PreferenceStore) Option {
	return func(p *Page) { p.prefs = prefs }
}

// Page is one mounted ranking board: the current selection, the result of
// fetching it, and the playback cell rows forward to.
type Page struct {
	board   *catalog.Board
	fetcher Fetcher
	player  Playback
	prefs   PreferenceStore
	now     func() time.Time
	loc     *time.Location
	logger  *log.Entry

	mu        sync.Mutex
	selection models.Selection
	result    Result
	seq       uint64
	cancel    context.CancelFunc
	settled   chan struct{}
	closed    bool
	listeners []func()
	inflight  sync.WaitGroup
}

// New mounts a page: it restores the persisted category (when the board has
// one), defaults the date to yesterday and dispatches the first fetch.
func New(board *catalog.Board, fetcher Fetcher, player Playback, opts ...Option) *Page {
	p := &Page{
		board:   board,
		fetcher: fetcher,
		player:  player,
		now:     time.Now,
		loc:     time.Local,
		logger:  log.WithFields(log.Fields{"module": "page", "board": board.ID}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.selection = models.Selection{
		Category: p.restoreCategory(),
		Date:     models.Yesterday(p.now(), p.loc),
	}
	p.dispatchLocked()
	return p
}

func (p *Page) restoreCategory() string {
	if !p.board.Persists() || p.prefs == nil {
		return p.board.DefaultCategory
	}
	saved, ok := p.prefs.Get(p.board.PreferenceKey)
	if !ok || !p.board.Contains(saved) {
		if ok {
			p.logger.Warnf("ignoring persisted %s=%q, not a known category", p.board.PreferenceKey, saved)
		}
		return p.board.DefaultCategory
	}
	return saved
}

func (p *Page) Board() *catalog.Board {
	return p.board
}

func (p *Page) Selection() models.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selection
}

func (p *Page) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.result
	r.Entries = append([]models.RankingEntry(nil), p.result.Entries...)
	return r
}

// SelectCategory switches the board to id. Persisting boards write id to the
// preference store even when it is already selected.
func (p *Page) SelectCategory(id string) error {
	if !p.board.Contains(id) {
		return fmt.Errorf("%w: %s/%s", ErrUnknownCategory, p.board.ID, id)
	}

	if p.board.Persists() && p.prefs != nil {
		if err := p.prefs.Set(p.board.PreferenceKey, id); err != nil {
			p.logger.Errorf("failed to persist %s: %v", p.board.PreferenceKey, err)
			sentry.CaptureException(err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selection.Category == id {
		return nil
	}
	p.selection.Category = id
	p.dispatchLocked()
	return nil
}

// SelectDate accepts date as-is; a value the endpoint has no snapshot for
// simply ends in the failure state.
func (p *Page) SelectDate(date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selection.Date == date {
		return
	}
	p.selection.Date = date
	p.dispatchLocked()
}

// Refresh re-fetches the current selection.
func (p *Page) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatchLocked()
}

// OnChange registers fn to run after every applied fetch result.
func (p *Page) OnChange(fn func()) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Wait blocks until the current selection has settled or ctx is done.
func (p *Page) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.result.Loading {
			p.mu.Unlock()
			return nil
		}
		settled := p.settled
		p.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels any in-flight fetch and waits for its goroutine to exit.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.seq++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.result.Loading = false
	p.settleLocked()
	p.mu.Unlock()

	p.inflight.Wait()
}

// Play forwards the video id of the row at index to the playback cell. Rows
// are addressed by position since snapshot rankings may repeat or be missing.
// Entries without an id are inert.
func (p *Page) Play(index int) (models.RankingEntry, bool) {
	p.mu.Lock()
	var entry models.RankingEntry
	found := false
	if !p.result.Loading && p.result.Error == "" && index >= 0 && index < len(p.result.Entries) {
		entry, found = p.result.Entries[index], true
	}
	p.mu.Unlock()

	if !found || !entry.IsPlayable() || p.player == nil {
		return entry, false
	}
	p.player.SetActiveTrack(entry.YoutubeID)
	return entry, true
}

// View renders the current state.
func (p *Page) View() View {
	p.mu.Lock()
	sel, res := p.selection, p.result
	p.mu.Unlock()

	active := ""
	if p.player != nil {
		active = p.player.ActiveTrack()
	}
	return Render(p.board, sel, res, active)
}

// dispatchLocked starts a fetch for the current selection. Each dispatch
// supersedes the previous one: its context is cancelled and its result,
// should it still arrive, is discarded by sequence number.
func (p *Page) dispatchLocked() {
	if p.closed {
		return
	}
	p.seq++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.settleLocked()

	sel := p.selection
	if !sel.IsComplete() {
		p.result = Result{}
		return
	}

	p.result.Loading = true
	p.result.Error = ""
	p.settled = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.inflight.Add(1)
	go p.fetch(ctx, p.seq, sel)
}

func (p *Page) settleLocked() {
	if p.settled != nil {
		close(p.settled)
		p.settled = nil
	}
}

func (p *Page) fetch(ctx context.Context, seq uint64, sel models.Selection) {
	defer p.inflight.Done()

	ctx, transaction := sentryhelper.StartFetchTransaction(ctx, p.board.ID, sel.Category, sel.Date)
	defer transaction.Finish()

	sentryhelper.AddBreadcrumb(ctx, &sentry.Breadcrumb{
		Category: "page",
		Message:  fmt.Sprintf("fetch %s/%s %s", p.board.ID, sel.Category, sel.Date),
		Level:    sentry.LevelInfo,
	})
	entries, err := p.fetcher.Fetch(ctx, p.board.ID, sel.Category, sel.Date)

	p.mu.Lock()
	if seq != p.seq {
		p.mu.Unlock()
		transaction.Status = sentry.SpanStatusCanceled
		p.logger.WithFields(log.Fields{"category": sel.Category, "date": sel.Date}).
			Debug("dropping superseded fetch result")
		return
	}

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if err != nil {
		p.logger.WithFields(log.Fields{"category": sel.Category, "date": sel.Date}).
			Errorf("fetch failed: %v", err)
		sentryhelper.CaptureException(ctx, err)
		transaction.Status = sentry.SpanStatusInternalError
		p.result = Result{Entries: []models.RankingEntry{}, Error: FailureText(p.board, err)}
	} else {
		transaction.Status = sentry.SpanStatusOK
		p.result = Result{Entries: entries}
	}
	p.settleLocked()
	listeners := append([]func(){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// FailureText is the message shown in place of the list after a failed fetch.
func FailureText(board *catalog.Board, err error) string {
	msg := board.FailureMessage
	if board.ExposeFailureCause && err != nil && !rankings.IsStatusFailure(err) {
		var fe *rankings.FetchError
		if errors.As(err, &fe) {
			msg = fe.Cause()
		} else {
			msg = err.Error()
		}
	}
	return board.FailurePrefix + msg
}
