package session

import (
	"karaoke-service/internal/resolver"
)

// Member is one participant of a session. ID is the opaque caller identity
// handed to us by the chat transport; Name is an optional display name.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// QueueItem is one submitted video. Once Played is set the item is immutable
// and only shows up in the history.
type QueueItem struct {
	ID          string         `json:"id"`
	Video       resolver.Video `json:"video"`
	AddedBy     string         `json:"addedBy"`
	AddedByName string         `json:"addedByName,omitempty"`
	Note        string         `json:"note,omitempty"`
	AddedAt     int64          `json:"addedAt"`
	Played      bool           `json:"played"`
}

// CastState tracks what a session is currently mirroring to a cast device.
type CastState struct {
	CurrentVideo *resolver.Video `json:"currentVideo,omitempty"`
	Device       string          `json:"device,omitempty"`
	Playing      bool            `json:"playing"`
}

// Session is a shared karaoke queue identified by a short shareable code.
// The owner is the caller who created it and never changes.
type Session struct {
	Code      string      `json:"code"`
	Members   []Member    `json:"members"`
	Owner     string      `json:"owner"`
	Queue     []QueueItem `json:"queue"`
	Cast      CastState   `json:"castStatus"`
	CreatedAt int64       `json:"createdAt"`
}

func (s *Session) hasMember(callerID string) bool {
	for _, m := range s.Members {
		if m.ID == callerID {
			return true
		}
	}
	return false
}

func (s *Session) removeMember(callerID string) {
	members := s.Members[:0]
	for _, m := range s.Members {
		if m.ID != callerID {
			members = append(members, m)
		}
	}
	s.Members = members
}
