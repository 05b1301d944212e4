package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/taskqueue"
)

const (
	writeWait      = 10 * time.Second
	maxFrameBytes  = 64 << 10
	outboxCapacity = 16
)

// Threads is the relational side of a thread.
type Threads interface {
	Participant(ctx context.Context, threadID, userID int64) (*model.Participant, error)
	RecipientIDs(ctx context.Context, threadID, senderID int64) ([]int64, error)
	Touch(ctx context.Context, threadID int64, content string, at time.Time) error
	MarkRead(ctx context.Context, threadID, userID int64) error
}

// Counters resets unread counters.
type Counters interface {
	ResetUnread(ctx context.Context, threadID, userID int64) error
}

// Enqueuer schedules background persistence.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// Hub accepts chat connections and routes their frames.
type Hub struct {
	threads  Threads
	counters Counters
	groups   Groups
	queue    Enqueuer
	upgrader websocket.Upgrader
	log      *zap.Logger
	now      func() time.Time
}

// NewHub returns a Hub.
func NewHub(threads Threads, counters Counters, groups Groups, queue Enqueuer, log *zap.Logger) *Hub {
	return &Hub{
		threads:  threads,
		counters: counters,
		groups:   groups,
		queue:    queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.OrNop(log).Named("chat"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Serve upgrades the request and runs the session until the client goes
// away. userID is zero for unauthenticated callers.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, threadID, userID int64) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &session{
		hub:      h,
		ws:       ws,
		threadID: threadID,
		userID:   userID,
		state:    newLifecycle(),
		direct:   make(chan Event, outboxCapacity),
		log: logger.WithFields(h.log,
			zap.Int64(logger.FieldThreadID, threadID),
			zap.Int64(logger.FieldUserID, userID)),
	}
	s.run(r.Context())
}

// session is one live connection. Frames from the client are handled
// serially by run; a single writer goroutine owns the socket's write side.
type session struct {
	hub      *Hub
	ws       *websocket.Conn
	threadID int64
	userID   int64
	profile  *model.Participant
	state    *lifecycle
	direct   chan Event
	log      *zap.Logger
}

func (s *session) run(reqCtx context.Context) {
	ctx := context.WithoutCancel(reqCtx)
	defer s.ws.Close()

	if s.userID == 0 {
		s.reject(CloseUnauthenticated, "authentication required")
		return
	}
	profile, err := s.hub.threads.Participant(ctx, s.threadID, s.userID)
	if apperr.KindOf(err) == apperr.KindPermissionDenied {
		s.reject(ClosePolicyViolation, "not a participant of this thread")
		return
	}
	if err != nil {
		s.log.Error("participant lookup failed", zap.Error(err))
		s.reject(websocket.CloseInternalServerErr, "chat unavailable")
		return
	}
	s.profile = profile

	sub, err := s.hub.groups.Subscribe(ctx, s.threadID)
	if err != nil {
		s.log.Error("subscribe failed", zap.Error(err))
		s.reject(websocket.CloseInternalServerErr, "chat unavailable")
		return
	}
	_ = s.state.advance(StateOpen)
	s.log.Debug("chat connection open")

	writerDone := make(chan struct{})
	go s.writeLoop(sub, writerDone)

	s.broadcast(ctx, statusEvent(s.userID, StatusOnline, s.hub.now()))
	s.ws.SetReadLimit(maxFrameBytes)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			break
		}
		s.handle(ctx, data)
	}

	_ = s.state.advance(StateClosing)
	s.broadcast(ctx, statusEvent(s.userID, StatusOffline, s.hub.now()))
	_ = sub.Close()
	close(s.direct)
	<-writerDone
	_ = s.state.advance(StateClosed)
	s.log.Debug("chat connection closed")
}

func (s *session) reject(code int, reason string) {
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = s.state.advance(StateClosed)
}

// writeLoop writes group events and direct replies until both sources close.
func (s *session) writeLoop(sub Subscription, done chan<- struct{}) {
	defer close(done)
	events, direct := sub.Events(), s.direct
	for events != nil || direct != nil {
		var ev Event
		var ok bool
		select {
		case ev, ok = <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.visibleTo(s.userID) {
				continue
			}
		case ev, ok = <-direct:
			if !ok {
				direct = nil
				continue
			}
		}
		if err := s.write(ev); err != nil {
			s.log.Debug("write failed", zap.Error(err))
		}
	}
}

func (s *session) write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

// reply sends an event to this connection only.
func (s *session) reply(ev Event) {
	select {
	case s.direct <- ev:
	default:
	}
}

func (s *session) broadcast(ctx context.Context, ev Event) {
	if err := s.hub.groups.Publish(ctx, s.threadID, ev); err != nil {
		s.log.Warn("broadcast failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (s *session) handle(ctx context.Context, data []byte) {
	in, err := DecodeInbound(data)
	if err != nil {
		s.reply(errorEvent(err.Error()))
		return
	}
	switch in.Type {
	case TypeChatMessage:
		s.chatMessage(ctx, in.Content)
	case TypeTyping:
		typing := in.IsTyping
		s.broadcast(ctx, Event{Type: TypeTyping, UserID: s.userID, UserName: s.profile.FullName, IsTyping: &typing})
	case TypeRead:
		s.read(ctx)
	default:
		s.reply(errorEvent("unknown message type"))
	}
}

func (s *session) chatMessage(ctx context.Context, content string) {
	if content == "" {
		s.reply(errorEvent("Message content cannot be empty"))
		return
	}

	// Ids are minted before the sequence number; readers order by seq only.
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	seq, err := s.hub.groups.NextSeq(ctx, s.threadID)
	if err != nil {
		s.log.Error("sequence allocation failed", zap.Error(err))
		s.reply(errorEvent("message could not be sent"))
		return
	}
	at := s.hub.now()

	if err := s.hub.threads.Touch(ctx, s.threadID, content, at); err != nil {
		s.log.Error("thread update failed", zap.Error(err))
		s.reply(errorEvent("message could not be sent"))
		return
	}

	s.broadcast(ctx, Event{
		Type:         TypeChatMessage,
		MessageID:    id.String(),
		Seq:          seq,
		ThreadID:     s.threadID,
		Content:      content,
		SenderID:     s.userID,
		SenderName:   s.profile.FullName,
		SenderAvatar: s.profile.AvatarURL,
		CreatedAt:    &at,
	})

	recipients, err := s.hub.threads.RecipientIDs(ctx, s.threadID, s.userID)
	if err != nil {
		s.log.Warn("recipient lookup failed, unread counters not updated", zap.Error(err))
	}
	err = s.hub.queue.Enqueue(ctx, taskqueue.PersistChatMessage, taskqueue.ChatMessagePayload{
		ThreadID:     s.threadID,
		SenderID:     s.userID,
		SenderName:   s.profile.FullName,
		SenderAvatar: s.profile.AvatarURL,
		Content:      content,
		MessageID:    id.String(),
		Seq:          seq,
		RecipientIDs: recipients,
		CreatedAt:    at,
	})
	if err != nil {
		s.log.Error("persist enqueue failed", zap.String("message_id", id.String()), zap.Error(err))
	}
}

func (s *session) read(ctx context.Context) {
	if err := s.hub.threads.MarkRead(ctx, s.threadID, s.userID); err != nil {
		s.log.Warn("mark read failed", zap.Error(err))
	}
	if err := s.hub.counters.ResetUnread(ctx, s.threadID, s.userID); err != nil {
		s.log.Warn("unread reset failed", zap.Error(err))
	}
	at := s.hub.now()
	s.broadcast(ctx, Event{Type: TypeMessageRead, UserID: s.userID, Timestamp: &at})
}
