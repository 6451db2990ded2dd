package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/bluesky-timelines/internal/domain"
	"github.com/blackmichael/bluesky-timelines/internal/session"
)

const writeWait = 10 * time.Second

// clientMessage is sent by the client over the session socket.
type clientMessage struct {
	// Op is one of "loadMore", "refresh" or "switch".
	Op string `json:"op"`

	// Key names the timeline to switch to.
	Key string `json:"key,omitempty"`
}

type segmentMessage struct {
	ID       string            `json:"id"`
	LoadedAt time.Time         `json:"loadedAt"`
	Posts    []domain.PostView `json:"posts"`
}

type snapshotMessage struct {
	Timeline   string           `json:"timeline"`
	Status     session.Status   `json:"status"`
	Generation uint64           `json:"generation"`
	HasMore    bool             `json:"hasMore"`
	Error      string           `json:"error,omitempty"`
	Segments   []segmentMessage `json:"segments"`
}

func newSnapshotMessage(snap session.Snapshot) snapshotMessage {
	msg := snapshotMessage{
		Timeline:   snap.Timeline,
		Status:     snap.Status,
		Generation: snap.Generation,
		HasMore:    snap.HasMore,
		Segments:   make([]segmentMessage, len(snap.Segments)),
	}
	if snap.Err != nil {
		msg.Error = snap.Err.Error()
	}
	for i, seg := range snap.Segments {
		msg.Segments[i] = segmentMessage{
			ID:       seg.ID,
			LoadedAt: seg.LoadedAt,
			Posts:    domain.NewPostViews(seg.Posts),
		}
	}
	return msg
}

// latest holds the newest snapshot not yet written. Intermediate snapshots
// are overwritten, so a slow client only ever sees the current state.
type latest struct {
	mu     sync.Mutex
	snap   *session.Snapshot
	signal chan struct{}
}

func (l *latest) put(s session.Snapshot) {
	l.mu.Lock()
	l.snap = &s
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *latest) take() (session.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap == nil {
		return session.Snapshot{}, false
	}
	s := *l.snap
	l.snap = nil
	return s, true
}

// handleSession streams a timeline session over a websocket. The first page
// is loaded on connect; afterwards the client drives loading with ops and
// receives a snapshot after every state change.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	logger := s.logger.With("timeline", cfg.Key)
	ctrl := session.NewController(s.producer, cfg, s.actor, logger)
	out := &latest{signal: make(chan struct{}, 1)}
	ctrl.OnChange(out.put)

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		s.writeSnapshots(ctx, conn, out)
	}()

	run := func(op func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := op(ctx); err != nil && ctx.Err() == nil {
				logger.Debug("session op failed", "error", err)
			}
		}()
	}
	run(ctrl.LoadMore)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("session read ended", "error", err)
			}
			cancel()
			return
		}

		switch msg.Op {
		case "loadMore":
			run(ctrl.LoadMore)
		case "refresh":
			run(ctrl.Refresh)
		case "switch":
			next, err := s.registry.Get(ctx, msg.Key)
			if err != nil {
				logger.Warn("switching timeline failed", "key", msg.Key, "error", err)
				continue
			}
			ctrl.SetConfig(next)
			run(ctrl.LoadMore)
		default:
			logger.Warn("unknown session op", "op", msg.Op)
		}
	}
}

func (s *Server) writeSnapshots(ctx context.Context, conn *websocket.Conn, out *latest) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-out.signal:
		}
		snap, ok := out.take()
		if !ok {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(newSnapshotMessage(snap)); err != nil {
			s.logger.Debug("session write failed", "error", err)
			return
		}
	}
}
