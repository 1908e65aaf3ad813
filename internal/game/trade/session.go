package trade

import "time"

type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateCompleted State = "COMPLETED"
	StateCancelled State = "CANCELLED"
)

// Session is the negotiation state between exactly two participants. It lives
// only in the registry; nothing about it survives a process restart.
type Session struct {
	InitiatorID   string
	InitiatorName string
	TargetID      string
	TargetName    string

	State      State
	CreatedAt  time.Time
	LastUpdate time.Time

	InitiatorConfirmed bool
	TargetConfirmed    bool

	InitiatorOffer Offer
	TargetOffer    Offer
}

func newSession(initiatorID, initiatorName, targetID, targetName string, now time.Time) *Session {
	return &Session{
		InitiatorID:   initiatorID,
		InitiatorName: initiatorName,
		TargetID:      targetID,
		TargetName:    targetName,
		State:         StatePending,
		CreatedAt:     now,
		LastUpdate:    now,
	}
}

// Partner returns the other participant's id and display name.
func (s *Session) Partner(userID string) (id, name string) {
	if userID == s.InitiatorID {
		return s.TargetID, s.TargetName
	}
	return s.InitiatorID, s.InitiatorName
}

func (s *Session) nameOf(userID string) string {
	if userID == s.InitiatorID {
		return s.InitiatorName
	}
	return s.TargetName
}

func (s *Session) offerOf(userID string) *Offer {
	if userID == s.InitiatorID {
		return &s.InitiatorOffer
	}
	return &s.TargetOffer
}

func (s *Session) confirmed(userID string) bool {
	if userID == s.InitiatorID {
		return s.InitiatorConfirmed
	}
	return s.TargetConfirmed
}

func (s *Session) setConfirmed(userID string) {
	if userID == s.InitiatorID {
		s.InitiatorConfirmed = true
	} else {
		s.TargetConfirmed = true
	}
}

func (s *Session) bothConfirmed() bool {
	return s.InitiatorConfirmed && s.TargetConfirmed
}

// resetConfirmations clears both flags. Every offer mutation and every failed
// commit goes through here.
func (s *Session) resetConfirmations() {
	s.InitiatorConfirmed = false
	s.TargetConfirmed = false
}

func (s *Session) Terminal() bool {
	return s.State == StateCompleted || s.State == StateCancelled
}

func (s *Session) touch(now time.Time) {
	s.LastUpdate = now
}

// snapshot returns a detached copy safe to read outside the registry lock.
func (s *Session) snapshot() Session {
	c := *s
	c.InitiatorOffer = s.InitiatorOffer.clone()
	c.TargetOffer = s.TargetOffer.clone()
	return c
}
