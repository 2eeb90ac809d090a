package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"karaoke-service/internal/resolver"
)

// ErrNotInSession is returned by operations that need the caller to be a
// member of a session when they are not.
var ErrNotInSession = errors.New("caller is not in a session")

// VideoResolver turns a raw link into a canonical video reference. Resolution
// may block on network I/O, so the store never calls it while holding its lock.
type VideoResolver interface {
	Resolve(ctx context.Context, url string) (resolver.Video, error)
}

// Store is the single authority for all session and queue state. Every
// exported operation is atomic with respect to the others: one mutex covers
// every session, which is plenty at the scale of a few concurrent chats.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	memberIndex map[string]string // caller id -> session code

	resolver VideoResolver
	path     string

	now   func() time.Time
	newID func() string
}

// NewStore loads the snapshot at path if one exists and falls back to an
// empty store when the file is missing or unreadable.
func NewStore(path string, r VideoResolver) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		memberIndex: make(map[string]string),
		resolver:    r,
		path:        path,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	s.loadSnapshot()
	return s
}

// Alphabet avoids 0/O, 1/I and L so codes survive being read out loud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const codeLength = 6

func generateCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand should never fail; fall back to a fixed code rather
		// than crash on a caller-triggered path.
		return "AAAAAA"
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}

// CreateSession starts a new session owned by the caller and returns its
// code. The caller's membership index entry is overwritten: any previous
// session's member list is intentionally left alone (see DESIGN.md).
func (s *Store) CreateSession(callerID, callerName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := generateCode()
	for {
		if _, exists := s.sessions[code]; !exists {
			break
		}
		code = generateCode()
	}

	s.sessions[code] = &Session{
		Code:      code,
		Members:   []Member{{ID: callerID, Name: callerName}},
		Owner:     callerID,
		Queue:     nil,
		Cast:      CastState{},
		CreatedAt: s.now().Unix(),
	}
	s.memberIndex[callerID] = code

	s.persistLocked()
	return code
}

// JoinSession adds the caller to the session named by code. Joining a session
// the caller is already in is a no-op that still succeeds.
func (s *Store) JoinSession(callerID, callerName, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return false
	}
	if !sess.hasMember(callerID) {
		sess.Members = append(sess.Members, Member{ID: callerID, Name: callerName})
	}
	s.memberIndex[callerID] = code

	s.persistLocked()
	return true
}

// LeaveSession removes the caller from their current session. The session is
// destroyed, queue and history included, when its last member leaves.
func (s *Store) LeaveSession(callerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.memberIndex[callerID]
	if !ok {
		return false
	}
	delete(s.memberIndex, callerID)

	if sess, ok := s.sessions[code]; ok {
		sess.removeMember(callerID)
		if len(sess.Members) == 0 {
			delete(s.sessions, code)
		}
	}

	s.persistLocked()
	return true
}

func (s *Store) IsInSession(callerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.memberIndex[callerID]
	return ok
}

func (s *Store) IsSessionOwner(callerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionOfLocked(callerID)
	return sess != nil && sess.Owner == callerID
}

// AddToQueue resolves url and appends it to the caller's session queue.
// The resolver call happens outside the store lock; membership is
// re-validated before committing in case the caller left mid-resolution.
// A video whose id already sits anywhere in the queue or history is declined
// with (false, nil) and no mutation.
func (s *Store) AddToQueue(ctx context.Context, callerID, url, callerName, note string) (bool, error) {
	s.mu.Lock()
	code, ok := s.memberIndex[callerID]
	s.mu.Unlock()
	if !ok {
		return false, ErrNotInSession
	}

	video, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		return false, fmt.Errorf("resolve video: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Optimistic re-check: the caller may have left or switched sessions
	// while the resolver was on the network.
	if s.memberIndex[callerID] != code {
		return false, ErrNotInSession
	}
	sess, ok := s.sessions[code]
	if !ok {
		return false, ErrNotInSession
	}

	for _, item := range sess.Queue {
		if item.Video.ID == video.ID {
			return false, nil
		}
	}

	sess.Queue = append(sess.Queue, QueueItem{
		ID:          s.newID(),
		Video:       video,
		AddedBy:     callerID,
		AddedByName: callerName,
		Note:        note,
		AddedAt:     s.now().Unix(),
		Played:      false,
	})

	s.persistLocked()
	return true, nil
}

// Queue returns the caller's unplayed items in insertion order.
func (s *Store) Queue(callerID string) ([]QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil {
		return nil, false
	}

	var items []QueueItem
	for _, item := range sess.Queue {
		if !item.Played {
			items = append(items, item)
		}
	}
	return items, true
}

// History returns the caller's played items in the order they were played.
func (s *Store) History(callerID string) ([]QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil {
		return nil, false
	}

	var items []QueueItem
	for _, item := range sess.Queue {
		if item.Played {
			items = append(items, item)
		}
	}
	return items, true
}

// NextInQueue advances the caller's session to the earliest unplayed item.
// Only the session owner may advance; everyone else gets a declined no-op.
// This is the sole mutator of play order and of the now-playing reference.
func (s *Store) NextInQueue(callerID string) (QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil || sess.Owner != callerID {
		return QueueItem{}, false
	}

	for i := range sess.Queue {
		if sess.Queue[i].Played {
			continue
		}
		sess.Queue[i].Played = true
		video := sess.Queue[i].Video
		sess.Cast.CurrentVideo = &video
		sess.Cast.Playing = true
		s.persistLocked()
		return sess.Queue[i], true
	}
	return QueueItem{}, false
}

// CurrentVideo reports the session's now-playing reference, if any.
func (s *Store) CurrentVideo(callerID string) (resolver.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil || sess.Cast.CurrentVideo == nil {
		return resolver.Video{}, false
	}
	return *sess.Cast.CurrentVideo, true
}

// StopPlayback clears the playing flag. The now-playing reference is kept so
// the last video stays queryable. Owner only.
func (s *Store) StopPlayback(callerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil || sess.Owner != callerID {
		return false
	}
	sess.Cast.Playing = false
	s.persistLocked()
	return true
}

// SetDevice binds a cast device name to the caller's session.
func (s *Store) SetDevice(callerID, device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil {
		return false
	}
	sess.Cast.Device = device
	s.persistLocked()
	return true
}

// Device returns the cast device bound to the caller's session, if any.
func (s *Store) Device(callerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil {
		return "", false
	}
	return sess.Cast.Device, true
}

// SessionInfo renders a human-readable summary of the caller's session. The
// full member list is included only for the owner.
func (s *Store) SessionInfo(callerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionOfLocked(callerID)
	if sess == nil {
		return "", false
	}

	duration := s.now().Unix() - sess.CreatedAt
	hours := duration / 3600
	minutes := (duration % 3600) / 60

	info := fmt.Sprintf("Session ID: %s\nDuration: %dh %dm\nUsers in session: %d",
		sess.Code, hours, minutes, len(sess.Members))

	if sess.Owner == callerID {
		info += "\n\nUsers in session:"
		for _, m := range sess.Members {
			name := m.Name
			if name == "" {
				name = "Anonymous"
			}
			info += "\n- " + name
		}
	}
	return info, true
}

// QueueByCode is a read-only view for the HTTP debug surface.
func (s *Store) QueueByCode(code string) ([]QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, false
	}
	var items []QueueItem
	for _, item := range sess.Queue {
		if !item.Played {
			items = append(items, item)
		}
	}
	return items, true
}

// HistoryByCode is a read-only view for the HTTP debug surface.
func (s *Store) HistoryByCode(code string) ([]QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, false
	}
	var items []QueueItem
	for _, item := range sess.Queue {
		if item.Played {
			items = append(items, item)
		}
	}
	return items, true
}

// sessionOfLocked resolves the caller's current session. Callers must hold mu.
func (s *Store) sessionOfLocked(callerID string) *Session {
	code, ok := s.memberIndex[callerID]
	if !ok {
		return nil
	}
	return s.sessions[code]
}
