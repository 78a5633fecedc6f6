package domain

import "time"

// Recipient is one registered delivery endpoint (an opaque push token plus
// device metadata). Tokens are unique within a user's recipient set.
type Recipient struct {
	Token      string    `json:"token"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

// DeliveryEntry records the outcome of one endpoint attempt.
type DeliveryEntry struct {
	Type    string    `json:"type"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// User is the per-account notification state this engine owns. The wider
// application stores more (journal entries, profile, settings); only the
// fields below flow through here.
type User struct {
	ID              string      `json:"id"`
	Recipients      []Recipient `json:"recipients"`
	RealityCheck    Schedule    `json:"realityCheck"`
	CustomSchedules []Schedule  `json:"customSchedules"`
	LastTokenUpdate time.Time   `json:"lastTokenUpdate"`
}

// NewUser creates a user with the built-in reality-check schedule in place.
func NewUser(id string) *User {
	return &User{ID: id, RealityCheck: NewRealityCheckSchedule()}
}

// ScheduleByID returns the schedule with the given ID, checking the built-in
// reality-check schedule first.
func (u *User) ScheduleByID(id string) (Schedule, bool) {
	if id == RealityCheckID {
		return u.RealityCheck, true
	}
	for _, s := range u.CustomSchedules {
		if s.ID == id {
			return s, true
		}
	}
	return Schedule{}, false
}

// HasRecipient reports whether token is already registered.
func (u *User) HasRecipient(token string) bool {
	for _, r := range u.Recipients {
		if r.Token == token {
			return true
		}
	}
	return false
}

// EnabledSchedules returns every enabled schedule (built-in plus custom).
func (u *User) EnabledSchedules() []Schedule {
	var out []Schedule
	if u.RealityCheck.Enabled {
		out = append(out, u.RealityCheck)
	}
	for _, s := range u.CustomSchedules {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
