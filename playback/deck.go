// Package playback holds the shared playback context: the one video id the
// external player should be showing, plus the websocket fan-out that tells
// listeners when it changes.
package playback

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Deck is a single mutable cell with change notification.
type Deck struct {
	mu        sync.RWMutex
	videoID   string
	changedAt time.Time
	listeners []func(videoID string)
}

func NewDeck() *Deck {
	return &Deck{}
}

func (d *Deck) ActiveTrack() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.videoID
}

// ChangedAt is the time of the last effective SetActiveTrack.
func (d *Deck) ChangedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.changedAt
}

// SetActiveTrack replaces the current id. Setting the id already active is a no-op.
func (d *Deck) SetActiveTrack(id string) {
	d.mu.Lock()
	if d.videoID == id {
		d.mu.Unlock()
		return
	}
	d.videoID = id
	d.changedAt = time.Now()
	listeners := append([]func(string){}, d.listeners...)
	d.mu.Unlock()

	log.WithFields(log.Fields{"module": "playback", "videoID": id}).Debug("active track changed")
	for _, fn := range listeners {
		fn(id)
	}
}

// OnChange registers fn to run after every effective change, outside the lock.
func (d *Deck) OnChange(fn func(videoID string)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Bind publishes every deck change on hub.
func (d *Deck) Bind(hub *Hub) {
	d.OnChange(func(videoID string) {
		hub.Publish(Event{Type: EventTrackChanged, VideoID: videoID})
	})
}
