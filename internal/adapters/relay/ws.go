package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/dkeye/callrelay/internal/feed"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var _ core.Signaling = (*WSRelay)(nil)

var ErrRelayClosed = errors.New("relay connection closed")

const defaultRequestTimeout = 10 * time.Second

type subscription struct {
	feed  *feed.Feed[signal.Message]
	ended chan struct{}
	once  sync.Once
}

func (s *subscription) end() {
	s.once.Do(func() {
		close(s.ended)
		s.feed.Finish()
	})
}

// WSRelay is a remote peer's view of the relay server. Requests are
// correlated by req_id; watch events are routed by the req_id of the watch
// request that opened them.
type WSRelay struct {
	conn    *websocket.Conn
	timeout time.Duration
	seq     atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan signal.Message
	subs    map[string]*subscription

	done      chan struct{}
	closeOnce sync.Once
}

// DialWS connects to the relay's signaling endpoint, e.g.
// ws://localhost:8080/api/ws/signal.
func DialWS(ctx context.Context, url string, header http.Header) (*WSRelay, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	r := &WSRelay{
		conn:    conn,
		timeout: defaultRequestTimeout,
		pending: make(map[string]chan signal.Message),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}
	go r.readLoop()
	log.Info().Str("module", "relay.ws").Str("url", url).Msg("connected")
	return r, nil
}

// SetRequestTimeout bounds how long a single request waits for its reply.
func (r *WSRelay) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

func (r *WSRelay) Close() error {
	r.closeOnce.Do(func() {
		r.writeMu.Lock()
		_ = r.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		r.writeMu.Unlock()
		_ = r.conn.Close()
	})
	<-r.done
	return nil
}

// Done is closed once the connection is gone.
func (r *WSRelay) Done() <-chan struct{} { return r.done }

func (r *WSRelay) readLoop() {
	defer func() {
		r.mu.Lock()
		subs := r.subs
		r.subs = make(map[string]*subscription)
		r.mu.Unlock()
		for _, s := range subs {
			s.end()
		}
		close(r.done)
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "relay.ws").Msg("read error")
			}
			return
		}
		var msg signal.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "relay.ws").Msg("bad json from relay")
			continue
		}
		r.route(msg)
	}
}

func (r *WSRelay) route(msg signal.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch msg.Type {
	case signal.TypeCallEvent, signal.TypeCandidateEvent:
		if s, ok := r.subs[msg.ReqID]; ok {
			s.feed.Push(msg)
		}
	case signal.TypeWatchClosed:
		if s, ok := r.subs[msg.ReqID]; ok {
			delete(r.subs, msg.ReqID)
			s.end()
		}
	default:
		if ch, ok := r.pending[msg.ReqID]; ok {
			delete(r.pending, msg.ReqID)
			ch <- msg
		}
	}
}

func (r *WSRelay) nextID() string {
	return strconv.FormatUint(r.seq.Add(1), 10)
}

func (r *WSRelay) write(msg signal.Message) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.SetWriteDeadline(time.Now().Add(r.timeout)); err != nil {
		return err
	}
	return r.conn.WriteJSON(msg)
}

func (r *WSRelay) roundTrip(ctx context.Context, msg signal.Message) (signal.Message, error) {
	if msg.ReqID == "" {
		msg.ReqID = r.nextID()
	}
	ch := make(chan signal.Message, 1)
	r.mu.Lock()
	r.pending[msg.ReqID] = ch
	r.mu.Unlock()
	forget := func() {
		r.mu.Lock()
		delete(r.pending, msg.ReqID)
		r.mu.Unlock()
	}

	if err := r.write(msg); err != nil {
		forget()
		return signal.Message{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	select {
	case reply := <-ch:
		if reply.Type == signal.TypeError {
			return reply, &signal.RemoteError{Code: reply.Code, Message: reply.Error}
		}
		return reply, nil
	case <-ctx.Done():
		forget()
		return signal.Message{}, ctx.Err()
	case <-r.done:
		return signal.Message{}, ErrRelayClosed
	}
}

// watch registers the subscription before the request goes out, so events
// racing ahead of the reply are not lost.
func (r *WSRelay) watch(ctx context.Context, msg signal.Message) (<-chan signal.Message, error) {
	id := r.nextID()
	msg.ReqID = id
	sub := &subscription{
		feed:  feed.New[signal.Message](ctx),
		ended: make(chan struct{}),
	}
	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()

	if _, err := r.roundTrip(ctx, msg); err != nil {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		sub.end()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			sub.end()
			if err := r.write(signal.Message{Type: signal.TypeUnwatch, ReqID: r.nextID(), WatchID: id}); err != nil {
				log.Debug().Err(err).Str("module", "relay.ws").Str("watch_id", id).Msg("unwatch")
			}
		case <-sub.ended:
		case <-r.done:
		}
	}()
	return sub.feed.Out(), nil
}

func forward[T any](ctx context.Context, in <-chan signal.Message, want string, conv func(signal.Message) (T, bool)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for m := range in {
			if m.Type != want {
				continue
			}
			v, ok := conv(m)
			if !ok {
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (r *WSRelay) Ping(ctx context.Context) error {
	_, err := r.roundTrip(ctx, signal.Message{Type: signal.TypePing})
	return err
}

func (r *WSRelay) CreateCall(ctx context.Context, callee domain.UserID) (domain.CallID, error) {
	reply, err := r.roundTrip(ctx, signal.Message{Type: signal.TypeCreateCall, Callee: callee})
	if err != nil {
		return "", err
	}
	return reply.CallID, nil
}

func (r *WSRelay) GetCall(ctx context.Context, id domain.CallID) (*domain.Call, error) {
	reply, err := r.roundTrip(ctx, signal.Message{Type: signal.TypeGetCall, CallID: id})
	if err != nil {
		return nil, err
	}
	if reply.Call == nil {
		return nil, domain.ErrCallNotFound
	}
	return reply.Call, nil
}

func (r *WSRelay) PublishOffer(ctx context.Context, id domain.CallID, offer domain.Offer) error {
	_, err := r.roundTrip(ctx, signal.Message{Type: signal.TypeSetOffer, CallID: id, Offer: &offer})
	return err
}

func (r *WSRelay) PublishAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription) error {
	_, err := r.roundTrip(ctx, signal.Message{Type: signal.TypeSetAnswer, CallID: id, Answer: &answer})
	return err
}

func (r *WSRelay) PublishCandidate(ctx context.Context, id domain.CallID, side domain.CandidateSide, c domain.Candidate) error {
	_, err := r.roundTrip(ctx, signal.Message{Type: signal.TypeAddCandidate, CallID: id, Side: side, Candidate: &c})
	return err
}

func (r *WSRelay) WatchCall(ctx context.Context, id domain.CallID) (<-chan domain.CallEvent, error) {
	in, err := r.watch(ctx, signal.Message{Type: signal.TypeWatchCall, CallID: id})
	if err != nil {
		return nil, err
	}
	return forward(ctx, in, signal.TypeCallEvent, func(m signal.Message) (domain.CallEvent, bool) {
		return domain.CallEvent{Call: m.Call, Deleted: m.Deleted}, true
	}), nil
}

func (r *WSRelay) WatchCandidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) (<-chan domain.Candidate, error) {
	in, err := r.watch(ctx, signal.Message{Type: signal.TypeWatchCandidates, CallID: id, Side: side})
	if err != nil {
		return nil, err
	}
	return forward(ctx, in, signal.TypeCandidateEvent, func(m signal.Message) (domain.Candidate, bool) {
		if m.Candidate == nil {
			return domain.Candidate{}, false
		}
		return *m.Candidate, true
	}), nil
}

func (r *WSRelay) EndCall(ctx context.Context, id domain.CallID) error {
	_, err := r.roundTrip(ctx, signal.Message{Type: signal.TypeDeleteCall, CallID: id})
	return err
}
