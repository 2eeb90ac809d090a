// Package chat is the command layer between a chat transport and the session
// store: it parses inbound messages into intents, applies them, and renders
// reply text. Caller identity is trusted as handed in by the transport.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"karaoke-service/internal/resolver"
	"karaoke-service/internal/session"
)

// Caller identifies who sent a message.
type Caller struct {
	ID   string
	Name string
}

// Caster is the playback-device integration consumed by the router. It may
// be nil when casting is disabled.
type Caster interface {
	ListDevices(ctx context.Context) ([]string, error)
	Play(ctx context.Context, v resolver.Video, device string) error
	Stop(ctx context.Context, device string) error
}

const helpText = `Available commands:
/help - Display this help message
/startsession - Start a new karaoke session
/join <code> - Join an existing session with its code
/add <youtube_url> [note] - Add a YouTube link to the queue
/queue - View the current queue
/next - Play the next video (owner only)
/current - Show the currently playing video
/history - Show already played videos
/devices - List cast devices on the network
/device [name] - Show or bind the session's cast device
/stop - Stop casting (owner only)
/info - Show session info
/leave - Leave the current session

You can also just paste a YouTube link to add it to the queue.`

const notInSessionReply = "You're not in a session. Join one with /join [code] or start your own with /startsession"

// Router applies chat intents to the session store and formats replies.
type Router struct {
	store     *session.Store
	caster    Caster
	broadcast func([]byte) // optional fan-out for state change events
}

func NewRouter(store *session.Store, caster Caster, broadcast func([]byte)) *Router {
	return &Router{
		store:     store,
		caster:    caster,
		broadcast: broadcast,
	}
}

// HandleMessage routes one inbound message and returns the reply text. An
// empty reply means the message was not addressed to us.
func (r *Router) HandleMessage(ctx context.Context, c Caller, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if strings.HasPrefix(text, "/") {
		return r.handleCommand(ctx, c, text)
	}

	// Bare messages containing a YouTube link are treated as an add; words
	// around the link become the note.
	if url, note, ok := extractYouTubeLink(text); ok {
		return r.addToQueue(ctx, c, url, note)
	}
	return ""
}

func (r *Router) handleCommand(ctx context.Context, c Caller, text string) string {
	args := parseArgs(text)
	if len(args) == 0 {
		return ""
	}
	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "/help", "/start":
		return helpText

	case "/startsession", "/start_session":
		code := r.store.CreateSession(c.ID, c.Name)
		return fmt.Sprintf("Created new karaoke session with code: %s\nShare this code with friends to let them join!", code)

	case "/join":
		if len(args) == 0 {
			return "Usage: /join <code>"
		}
		code := strings.ToUpper(strings.TrimSpace(args[0]))
		if !r.store.JoinSession(c.ID, c.Name, code) {
			return "Invalid session code. Please check and try again."
		}
		return "You've joined session: " + code

	case "/add":
		if len(args) == 0 {
			return "Please provide a YouTube URL with /add."
		}
		return r.addToQueue(ctx, c, args[0], strings.Join(args[1:], " "))

	case "/queue":
		items, ok := r.store.Queue(c.ID)
		if !ok {
			return notInSessionReply
		}
		return formatQueue(items)

	case "/next":
		return r.handleNext(ctx, c)

	case "/current":
		video, ok := r.store.CurrentVideo(c.ID)
		if !ok {
			if !r.store.IsInSession(c.ID) {
				return notInSessionReply
			}
			return "Nothing has been played yet. Advance the queue with /next."
		}
		return "Currently playing: " + videoLabel(video)

	case "/history":
		items, ok := r.store.History(c.ID)
		if !ok {
			return notInSessionReply
		}
		return formatHistory(items)

	case "/devices":
		if r.caster == nil {
			return "Casting is not enabled."
		}
		names, err := r.caster.ListDevices(ctx)
		if err != nil {
			return "Device discovery failed: " + err.Error()
		}
		return "Cast devices:\n- " + strings.Join(names, "\n- ")

	case "/device":
		if len(args) == 0 {
			device, ok := r.store.Device(c.ID)
			if !ok {
				return notInSessionReply
			}
			if device == "" {
				return "No cast device bound. Set one with /device <name>."
			}
			return "Cast device: " + device
		}
		name := strings.Join(args, " ")
		if !r.store.SetDevice(c.ID, name) {
			return notInSessionReply
		}
		return "Cast device set to: " + name

	case "/stop":
		return r.handleStop(ctx, c)

	case "/info":
		info, ok := r.store.SessionInfo(c.ID)
		if !ok {
			return notInSessionReply
		}
		return info

	case "/leave":
		if !r.store.LeaveSession(c.ID) {
			return "You're not in a session."
		}
		return "You've left the session."

	default:
		return "Unknown command. Type /help for the list of commands."
	}
}

func (r *Router) addToQueue(ctx context.Context, c Caller, url, note string) string {
	if !resolver.Validate(url) {
		return "Please provide a valid YouTube URL."
	}

	ok, err := r.store.AddToQueue(ctx, c.ID, url, c.Name, note)
	if errors.Is(err, session.ErrNotInSession) {
		return notInSessionReply
	}
	if err != nil {
		log.Printf("chat: add to queue: %v", err)
		return "There was an error adding your video to the queue."
	}
	if !ok {
		return "This video is already in the queue."
	}

	r.publishEvent(map[string]any{"type": "queue.added", "payload": map[string]any{"addedBy": c.ID}})
	return "Added to queue! Type /queue to see the current lineup."
}

func (r *Router) handleNext(ctx context.Context, c Caller) string {
	item, ok := r.store.NextInQueue(c.ID)
	if !ok {
		if !r.store.IsInSession(c.ID) {
			return notInSessionReply
		}
		if !r.store.IsSessionOwner(c.ID) {
			return "Only the session owner can play the next video."
		}
		return "The queue is empty. Add videos with /add [youtube_url]"
	}

	reply := "Now playing: " + itemLabel(item)
	r.publishEvent(map[string]any{"type": "player.advanced", "payload": item})

	if r.caster != nil {
		// The queue has already advanced and the store lock is released; a
		// slow or dead device only degrades this reply, never the state.
		device, _ := r.store.Device(c.ID)
		if err := r.caster.Play(ctx, item.Video, device); err != nil {
			log.Printf("chat: cast play: %v", err)
			reply += "\nCasting failed: " + err.Error()
		}
	}
	return reply
}

func (r *Router) handleStop(ctx context.Context, c Caller) string {
	if !r.store.StopPlayback(c.ID) {
		if !r.store.IsInSession(c.ID) {
			return notInSessionReply
		}
		return "Only the session owner can stop playback."
	}

	reply := "Playback stopped."
	if r.caster != nil {
		device, _ := r.store.Device(c.ID)
		if err := r.caster.Stop(ctx, device); err != nil {
			log.Printf("chat: cast stop: %v", err)
			reply += "\nStopping the cast device failed: " + err.Error()
		}
	}
	return reply
}

func (r *Router) publishEvent(event map[string]any) {
	if r.broadcast == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("chat: marshal event: %v", err)
		return
	}
	r.broadcast(data)
}

// parseArgs tokenizes a command line, honoring quoted arguments and falling
// back to plain whitespace splitting on malformed quoting.
func parseArgs(text string) []string {
	args, err := shellwords.Parse(text)
	if err != nil {
		return strings.Fields(text)
	}
	return args
}

// extractYouTubeLink finds the first YouTube link in a free-text message.
// Words before and after the link are combined into the note.
func extractYouTubeLink(text string) (url, note string, ok bool) {
	words := strings.Fields(text)
	pos := -1
	for i, w := range words {
		if strings.Contains(w, "youtube.com") || strings.Contains(w, "youtu.be") {
			pos = i
			break
		}
	}
	if pos < 0 {
		return "", "", false
	}

	var parts []string
	if pos > 0 {
		parts = append(parts, strings.Join(words[:pos], " "))
	}
	if pos < len(words)-1 {
		parts = append(parts, strings.Join(words[pos+1:], " "))
	}
	return words[pos], strings.Join(parts, " "), true
}

func formatQueue(items []session.QueueItem) string {
	if len(items) == 0 {
		return "The queue is empty. Add videos with /add [youtube_url]"
	}
	var b strings.Builder
	b.WriteString("Current queue:")
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s (added by %s)", i+1, itemLabel(item), addedByLabel(item))
		if item.Note != "" {
			b.WriteString(" - Note: " + item.Note)
		}
	}
	return b.String()
}

func formatHistory(items []session.QueueItem) string {
	if len(items) == 0 {
		return "Nothing has been played yet."
	}
	var b strings.Builder
	b.WriteString("Played so far:")
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, itemLabel(item))
	}
	return b.String()
}

func itemLabel(item session.QueueItem) string {
	return videoLabel(item.Video)
}

func videoLabel(v resolver.Video) string {
	if v.Title != "" {
		return v.Title
	}
	return v.URL
}

func addedByLabel(item session.QueueItem) string {
	if item.AddedByName != "" {
		return item.AddedByName
	}
	return "User " + item.AddedBy
}
