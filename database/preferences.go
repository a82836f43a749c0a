package database

import (
	log "github.com/sirupsen/logrus"
)

// PreferenceStore is the durable per-visitor key/value store a page persists
// its selection into.
type PreferenceStore struct {
	db        *Database
	sessionID string
}

func (d *Database) Preferences(sessionID string) *PreferenceStore {
	return &PreferenceStore{db: d, sessionID: sessionID}
}

// Get reports a read failure as a miss so callers fall back to defaults.
func (p *PreferenceStore) Get(key string) (string, bool) {
	value, ok, err := p.db.GetPreference(p.sessionID, key)
	if err != nil {
		log.WithFields(log.Fields{"module": "database", "session": p.sessionID, "key": key}).
			Warnf("preference read failed: %v", err)
		return "", false
	}
	return value, ok
}

func (p *PreferenceStore) Set(key, value string) error {
	return p.db.SetPreference(p.sessionID, key, value)
}
