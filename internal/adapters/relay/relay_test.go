package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/adapters/store"
	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type relayFactory func(t *testing.T) core.Signaling

func redisStore(t *testing.T) core.CallStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// startServer runs the WebSocket relay over an in-memory store and returns
// the signaling URL.
func startServer(t *testing.T, opts signal.Options, limiter *signal.RateLimiter) string {
	return startServerOn(t, store.NewMemory(), opts, limiter)
}

func startServerOn(t *testing.T, calls core.CallStore, opts signal.Options, limiter *signal.RateLimiter) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	ctl := signal.NewSignalWSController(
		NewStoreRelay(calls),
		app.NewRegistry(),
		app.SimplePolicy{},
		limiter,
		opts,
	)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *WSRelay {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	r, err := DialWS(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func relays() map[string]relayFactory {
	return map[string]relayFactory{
		"store": func(t *testing.T) core.Signaling {
			return NewStoreRelay(store.NewMemory())
		},
		"ws": func(t *testing.T) core.Signaling {
			return dial(t, startServer(t, signal.Options{}, nil))
		},
		"store-redis": func(t *testing.T) core.Signaling {
			return NewStoreRelay(redisStore(t))
		},
		"ws-redis": func(t *testing.T) core.Signaling {
			return dial(t, startServerOn(t, redisStore(t), signal.Options{}, nil))
		},
	}
}

func offer() domain.Offer {
	return domain.Offer{
		From:               "alice",
		SessionDescription: domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer"},
	}
}

func answer() domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer"}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

func TestSignaling(t *testing.T) {
	for name, factory := range relays() {
		t.Run(name, func(t *testing.T) {
			t.Run("CreateGetEnd", func(t *testing.T) {
				sig := factory(t)
				ctx := context.Background()

				id, err := sig.CreateCall(ctx, "bob")
				require.NoError(t, err)
				require.NotEmpty(t, id)

				call, err := sig.GetCall(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, id, call.ID)
				assert.Equal(t, domain.UserID("bob"), call.Callee)
				assert.Nil(t, call.Offer)
				assert.Nil(t, call.Answer)

				require.NoError(t, sig.EndCall(ctx, id))
				_, err = sig.GetCall(ctx, id)
				assert.ErrorIs(t, err, domain.ErrCallNotFound)
				assert.ErrorIs(t, sig.EndCall(ctx, id), domain.ErrCallNotFound)
			})

			t.Run("OfferAnswer", func(t *testing.T) {
				sig := factory(t)
				ctx := context.Background()
				id, err := sig.CreateCall(ctx, "")
				require.NoError(t, err)

				bad := offer()
				bad.Type = domain.SDPTypeAnswer
				assert.ErrorIs(t, sig.PublishOffer(ctx, id, bad), domain.ErrInvalidDescription)
				assert.ErrorIs(t, sig.PublishAnswer(ctx, id, domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "x"}), domain.ErrInvalidDescription)

				require.NoError(t, sig.PublishOffer(ctx, id, offer()))
				require.NoError(t, sig.PublishAnswer(ctx, id, answer()))
				assert.ErrorIs(t, sig.PublishAnswer(ctx, id, answer()), domain.ErrAlreadyAnswered)

				call, err := sig.GetCall(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, call.Offer)
				require.NotNil(t, call.Answer)
				assert.Equal(t, domain.SDPTypeOffer, call.Offer.Type)
				assert.Equal(t, domain.UserID("alice"), call.Offer.From)
				assert.Equal(t, domain.SDPTypeAnswer, call.Answer.Type)
			})

			t.Run("Candidates", func(t *testing.T) {
				sig := factory(t)
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				id, err := sig.CreateCall(ctx, "")
				require.NoError(t, err)

				cands, err := sig.WatchCandidates(ctx, id, domain.AnswerCandidates)
				require.NoError(t, err)

				assert.ErrorIs(t, sig.PublishCandidate(ctx, id, "sideways", domain.Candidate{Candidate: "x"}), domain.ErrInvalidSide)
				require.NoError(t, sig.PublishCandidate(ctx, id, domain.OfferCandidates, domain.Candidate{Candidate: "offer-1"}))
				for _, c := range []string{"a-1", "a-2", "a-3"} {
					require.NoError(t, sig.PublishCandidate(ctx, id, domain.AnswerCandidates, domain.Candidate{Candidate: c}))
				}

				assert.Equal(t, "a-1", recv(t, cands).Candidate)
				assert.Equal(t, "a-2", recv(t, cands).Candidate)
				assert.Equal(t, "a-3", recv(t, cands).Candidate)

				require.NoError(t, sig.EndCall(ctx, id))
				requireClosed(t, cands)
			})

			t.Run("WatchCall", func(t *testing.T) {
				sig := factory(t)
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				id, err := sig.CreateCall(ctx, "")
				require.NoError(t, err)

				events, err := sig.WatchCall(ctx, id)
				require.NoError(t, err)

				ev := recv(t, events)
				require.NotNil(t, ev.Call)
				assert.Nil(t, ev.Call.Offer)

				require.NoError(t, sig.PublishOffer(ctx, id, offer()))
				ev = recv(t, events)
				require.NotNil(t, ev.Call.Offer)

				require.NoError(t, sig.PublishAnswer(ctx, id, answer()))
				ev = recv(t, events)
				require.NotNil(t, ev.Call.Answer)

				require.NoError(t, sig.EndCall(ctx, id))
				ev = recv(t, events)
				assert.True(t, ev.Deleted)
				requireClosed(t, events)
			})

			t.Run("WatchCancel", func(t *testing.T) {
				sig := factory(t)
				id, err := sig.CreateCall(context.Background(), "")
				require.NoError(t, err)

				ctx, cancel := context.WithCancel(context.Background())
				events, err := sig.WatchCall(ctx, id)
				require.NoError(t, err)
				recv(t, events)
				cancel()
				requireClosed(t, events)

				// The record itself is untouched.
				_, err = sig.GetCall(context.Background(), id)
				assert.NoError(t, err)
			})

			t.Run("WatchMissing", func(t *testing.T) {
				sig := factory(t)
				_, err := sig.WatchCall(context.Background(), "nope")
				assert.ErrorIs(t, err, domain.ErrCallNotFound)
				_, err = sig.WatchCandidates(context.Background(), "nope", domain.OfferCandidates)
				assert.ErrorIs(t, err, domain.ErrCallNotFound)
			})
		})
	}
}

func TestWSRelayPing(t *testing.T) {
	r := dial(t, startServer(t, signal.Options{}, nil))
	assert.NoError(t, r.Ping(context.Background()))
}

func TestWSRelayRateLimited(t *testing.T) {
	r := dial(t, startServer(t, signal.Options{}, signal.NewRateLimiter(0.001, 2)))
	ctx := context.Background()
	require.NoError(t, r.Ping(ctx))
	require.NoError(t, r.Ping(ctx))

	err := r.Ping(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, signal.ErrRateLimited)

	var remote *signal.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, signal.CodeRateLimited, remote.Code)
}

func TestWSRelayClosed(t *testing.T) {
	r := dial(t, startServer(t, signal.Options{}, nil))
	require.NoError(t, r.Close())

	select {
	case <-r.Done():
	case <-time.After(waitFor):
		t.Fatal("done not closed")
	}
	_, err := r.CreateCall(context.Background(), "")
	assert.ErrorIs(t, err, ErrRelayClosed)
}

func TestWSRelaySharedCall(t *testing.T) {
	url := startServer(t, signal.Options{}, nil)
	caller := dial(t, url)
	callee := dial(t, url)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := caller.CreateCall(ctx, "bob")
	require.NoError(t, err)
	events, err := caller.WatchCall(ctx, id)
	require.NoError(t, err)
	recv(t, events)

	require.NoError(t, caller.PublishOffer(ctx, id, offer()))
	recv(t, events)

	call, err := callee.GetCall(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, call.Offer)
	require.NoError(t, callee.PublishAnswer(ctx, id, answer()))

	ev := recv(t, events)
	require.NotNil(t, ev.Call.Answer)
	assert.Equal(t, "v=0 answer", ev.Call.Answer.SDP)

	// The callee hanging up is seen by the caller as a deleted record.
	require.NoError(t, callee.EndCall(ctx, id))
	assert.True(t, recv(t, events).Deleted)
}

func TestWSRelayRequestTimeout(t *testing.T) {
	// A relay that accepts the connection but never answers.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	r := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	r.SetRequestTimeout(50 * time.Millisecond)

	start := time.Now()
	err := r.Ping(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), waitFor)
}
