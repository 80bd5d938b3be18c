package call

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/callrelay/internal/adapters/media"
	"github.com/dkeye/callrelay/internal/adapters/relay"
	"github.com/dkeye/callrelay/internal/adapters/rtc"
	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/adapters/store"
	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connectTimeout = 20 * time.Second

func newPeer(t *testing.T, sig core.Signaling, user domain.UserID) *Client {
	t.Helper()
	f, err := rtc.NewFactory(rtc.Options{IncludeLoopback: true, LogLevel: zerolog.WarnLevel})
	require.NoError(t, err)
	c := NewClient(sig, &media.SyntheticDevices{}, f, Options{User: user})
	t.Cleanup(func() { _ = c.HangUp(context.Background()) })
	return c
}

func skipShort(t *testing.T) {
	if testing.Short() {
		t.Skip("establishes real peer connections")
	}
}

func TestCallEndToEnd(t *testing.T) {
	skipShort(t)
	runCall(t, relay.NewStoreRelay(store.NewMemory()))
}

func TestCallEndToEndRedis(t *testing.T) {
	skipShort(t)
	mr := miniredis.RunT(t)
	calls := store.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", 0)
	t.Cleanup(func() { _ = calls.Close() })
	runCall(t, relay.NewStoreRelay(calls))
}

// runCall takes a call from offer to remote hang-up over sig.
func runCall(t *testing.T, sig core.Signaling) {
	ctx := context.Background()
	alice := newPeer(t, sig, "alice")
	bob := newPeer(t, sig, "bob")

	id, err := alice.StartCall(ctx, "bob")
	require.NoError(t, err)

	rec, err := sig.GetCall(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.Offer)
	assert.Equal(t, domain.SDPTypeOffer, rec.Offer.Type)
	assert.NotEmpty(t, rec.Offer.SDP)
	assert.Equal(t, domain.UserID("alice"), rec.Offer.From)

	require.NoError(t, bob.JoinCall(ctx, id))
	rec, err = sig.GetCall(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.Answer)
	assert.Equal(t, domain.SDPTypeAnswer, rec.Answer.Type)
	assert.NotEmpty(t, rec.Answer.SDP)

	require.Eventually(t, func() bool {
		return alice.State() == StateInCall && bob.State() == StateInCall
	}, connectTimeout, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		rs := bob.RemoteStream()
		return rs != nil && rs.Packets(webrtc.RTPCodecTypeAudio) > 0 && rs.Packets(webrtc.RTPCodecTypeVideo) > 0
	}, connectTimeout, 50*time.Millisecond)

	muted, err := alice.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)
	videoOn, err := alice.ToggleVideo()
	require.NoError(t, err)
	assert.False(t, videoOn)
	for _, tr := range alice.LocalStream().Tracks() {
		assert.False(t, tr.Enabled(), tr.Kind().String())
	}
	muted, err = alice.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, alice.HangUp(ctx))
	_, err = sig.GetCall(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
	assert.Equal(t, StateClosed, alice.State())
	assert.Nil(t, alice.LocalStream())
	assert.Nil(t, alice.RemoteStream())

	// Bob sees the record disappear and tears down on his own.
	require.Eventually(t, func() bool { return bob.State() == StateClosed }, connectTimeout, 50*time.Millisecond)
	assert.Nil(t, bob.LocalStream())
	assert.Nil(t, bob.RemoteStream())
	assert.NoError(t, bob.HangUp(ctx))
}

func TestSecondJoinRejected(t *testing.T) {
	skipShort(t)
	ctx := context.Background()
	sig := relay.NewStoreRelay(store.NewMemory())
	alice := newPeer(t, sig, "alice")
	bob := newPeer(t, sig, "bob")
	carol := newPeer(t, sig, "carol")

	id, err := alice.StartCall(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, bob.JoinCall(ctx, id))

	err = carol.JoinCall(ctx, id)
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)
	assert.Equal(t, StateIdle, carol.State())
	assert.Nil(t, carol.LocalStream())

	// The losing joiner leaves the call intact.
	_, err = sig.GetCall(ctx, id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return alice.State() == StateInCall && bob.State() == StateInCall
	}, connectTimeout, 50*time.Millisecond)
}

func TestDeniedMediaCreatesNoRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	sig := relay.NewStoreRelay(mem)
	f, err := rtc.NewFactory(rtc.Options{LogLevel: zerolog.WarnLevel})
	require.NoError(t, err)
	c := NewClient(sig, &media.SyntheticDevices{Deny: true}, f, Options{User: "alice"})

	_, err = c.StartCall(ctx, "bob")
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, StateIdle, c.State())
}

func TestNewCallAfterHangUp(t *testing.T) {
	skipShort(t)
	ctx := context.Background()
	sig := relay.NewStoreRelay(store.NewMemory())
	alice := newPeer(t, sig, "alice")

	first, err := alice.StartCall(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, alice.HangUp(ctx))

	second, err := alice.StartCall(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, StateOfferSent, alice.State())
}

func TestCallOverWebSocketRelay(t *testing.T) {
	skipShort(t)
	gin.SetMode(gin.TestMode)
	srvCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl := signal.NewSignalWSController(
		relay.NewStoreRelay(store.NewMemory()),
		app.NewRegistry(),
		app.SimplePolicy{},
		nil,
		signal.Options{},
	)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(srvCtx, c) })
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx := context.Background()
	dial := func() *relay.WSRelay {
		ws, err := relay.DialWS(ctx, url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	}
	alice := newPeer(t, dial(), "alice")
	bob := newPeer(t, dial(), "bob")

	id, err := alice.StartCall(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, bob.JoinCall(ctx, id))

	require.Eventually(t, func() bool {
		return alice.State() == StateInCall && bob.State() == StateInCall
	}, connectTimeout, 50*time.Millisecond)

	require.NoError(t, bob.HangUp(ctx))
	require.Eventually(t, func() bool { return alice.State() == StateClosed }, connectTimeout, 50*time.Millisecond)
}
