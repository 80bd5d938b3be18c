package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/core/mocks"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	testOffer  = domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer"}
	testAnswer = domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer"}
)

type fixture struct {
	sig   *mocks.MockSignaling
	dev   *mocks.MockMediaDevices
	conns *mocks.MockConnectionFactory
	ctrl  *gomock.Controller
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return &fixture{
		sig:   mocks.NewMockSignaling(ctrl),
		dev:   mocks.NewMockMediaDevices(ctrl),
		conns: mocks.NewMockConnectionFactory(ctrl),
		ctrl:  ctrl,
	}
}

func (f *fixture) client() *Client {
	return NewClient(f.sig, f.dev, f.conns, Options{User: "alice"})
}

// expectMedia grants a stream with no tracks that must be stopped.
func (f *fixture) expectMedia() *mocks.MockLocalStream {
	stream := mocks.NewMockLocalStream(f.ctrl)
	stream.EXPECT().Tracks().Return(nil).AnyTimes()
	stream.EXPECT().Stop()
	f.dev.EXPECT().GetUserMedia(gomock.Any(), core.MediaConstraints{Audio: true, Video: true}).Return(stream, nil)
	return stream
}

type connHooks struct {
	onICE   func(domain.Candidate)
	onState func(webrtc.PeerConnectionState)
}

// expectConn hands out a connection that must be closed, capturing the
// callbacks the client installs.
func (f *fixture) expectConn(hooks *connHooks) *mocks.MockMediaConnection {
	conn := mocks.NewMockMediaConnection(f.ctrl)
	conn.EXPECT().OnTrack(gomock.Any())
	conn.EXPECT().OnStateChange(gomock.Any()).Do(func(fn func(webrtc.PeerConnectionState)) {
		if hooks != nil {
			hooks.onState = fn
		}
	})
	conn.EXPECT().OnICECandidate(gomock.Any()).Do(func(fn func(domain.Candidate)) {
		if hooks != nil {
			hooks.onICE = fn
		}
	})
	conn.EXPECT().OnClosed(gomock.Any())
	conn.EXPECT().Start(gomock.Any()).Return(nil)
	conn.EXPECT().Close()
	f.conns.EXPECT().NewConnection("alice").Return(conn, nil)
	return conn
}

func TestStartCallMediaDenied(t *testing.T) {
	f := newFixture(t)
	f.dev.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(nil, core.ErrPermissionDenied)

	c := f.client()
	id, err := c.StartCall(context.Background(), "bob")
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.Empty(t, id)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.LocalStream())
	assert.Nil(t, c.RemoteStream())
}

func TestJoinCallMediaDenied(t *testing.T) {
	f := newFixture(t)
	f.dev.EXPECT().GetUserMedia(gomock.Any(), gomock.Any()).Return(nil, core.ErrPermissionDenied)

	c := f.client()
	err := c.JoinCall(context.Background(), "c1")
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.Equal(t, StateIdle, c.State())
}

func TestJoinCallWithoutOffer(t *testing.T) {
	f := newFixture(t)
	f.expectMedia()
	f.expectConn(nil)
	f.sig.EXPECT().GetCall(gomock.Any(), domain.CallID("c1")).Return(&domain.Call{ID: "c1"}, nil)

	c := f.client()
	err := c.JoinCall(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrNoOffer)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.CallID())
}

func TestJoinCallLosesRace(t *testing.T) {
	f := newFixture(t)
	f.expectMedia()
	conn := f.expectConn(nil)
	f.sig.EXPECT().GetCall(gomock.Any(), domain.CallID("c1")).Return(&domain.Call{
		ID:    "c1",
		Offer: &domain.Offer{From: "bob", SessionDescription: testOffer},
	}, nil)
	conn.EXPECT().ApplyOfferAndCreateAnswer(testOffer).Return(testAnswer, nil)
	f.sig.EXPECT().PublishAnswer(gomock.Any(), domain.CallID("c1"), testAnswer).Return(domain.ErrAlreadyAnswered)

	c := f.client()
	err := c.JoinCall(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)
	assert.Equal(t, StateIdle, c.State())
}

func TestStartCallDeletesRecordWhenOfferFails(t *testing.T) {
	f := newFixture(t)
	f.expectMedia()
	conn := f.expectConn(nil)
	boom := errors.New("boom")
	f.sig.EXPECT().CreateCall(gomock.Any(), domain.UserID("bob")).Return(domain.CallID("c1"), nil)
	conn.EXPECT().CreateOffer().Return(testOffer, nil)
	f.sig.EXPECT().PublishOffer(gomock.Any(), domain.CallID("c1"), gomock.Any()).Return(boom)
	f.sig.EXPECT().EndCall(gomock.Any(), domain.CallID("c1")).Return(nil)

	c := f.client()
	_, err := c.StartCall(context.Background(), "bob")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateIdle, c.State())
}

func TestStartCallFlow(t *testing.T) {
	f := newFixture(t)
	f.expectMedia()
	hooks := &connHooks{}
	conn := f.expectConn(hooks)

	events := make(chan domain.CallEvent, 4)
	cands := make(chan domain.Candidate, 4)
	var eventsOut <-chan domain.CallEvent = events
	var candsOut <-chan domain.Candidate = cands

	var published domain.Offer
	f.sig.EXPECT().CreateCall(gomock.Any(), domain.UserID("bob")).Return(domain.CallID("c1"), nil)
	conn.EXPECT().CreateOffer().Return(testOffer, nil)
	f.sig.EXPECT().PublishOffer(gomock.Any(), domain.CallID("c1"), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.CallID, o domain.Offer) error {
			published = o
			return nil
		})
	f.sig.EXPECT().WatchCall(gomock.Any(), domain.CallID("c1")).Return(eventsOut, nil)
	f.sig.EXPECT().WatchCandidates(gomock.Any(), domain.CallID("c1"), domain.AnswerCandidates).Return(candsOut, nil)

	c := f.client()
	id, err := c.StartCall(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.CallID("c1"), id)
	assert.Equal(t, StateOfferSent, c.State())
	assert.Equal(t, domain.UserID("alice"), published.From)
	assert.Equal(t, domain.SDPTypeOffer, published.Type)

	_, err = c.StartCall(context.Background(), "carol")
	assert.ErrorIs(t, err, core.ErrBusy)

	// Local candidates go to the caller's collection.
	local := domain.Candidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host"}
	published1 := make(chan struct{})
	f.sig.EXPECT().PublishCandidate(gomock.Any(), domain.CallID("c1"), domain.OfferCandidates, local).
		DoAndReturn(func(context.Context, domain.CallID, domain.CandidateSide, domain.Candidate) error {
			close(published1)
			return nil
		})
	hooks.onICE(local)
	waitClosed(t, published1)

	// The first answer seen is applied once.
	applied := make(chan struct{})
	conn.EXPECT().ApplyAnswer(testAnswer).DoAndReturn(func(domain.SessionDescription) error {
		close(applied)
		return nil
	})
	withAnswer := &domain.Call{ID: "c1", Answer: &testAnswer}
	events <- domain.CallEvent{Call: withAnswer}
	events <- domain.CallEvent{Call: withAnswer}
	waitClosed(t, applied)

	remote := domain.Candidate{Candidate: "candidate:2 1 udp 1 127.0.0.1 6000 typ host"}
	added := make(chan struct{})
	conn.EXPECT().AddICECandidate(remote).DoAndReturn(func(domain.Candidate) error {
		close(added)
		return nil
	})
	cands <- remote
	waitClosed(t, added)

	hooks.onState(webrtc.PeerConnectionStateConnected)
	require.Eventually(t, func() bool { return c.State() == StateInCall }, time.Second, 10*time.Millisecond)

	// The callee deleting the record ends the call here without a second delete.
	events <- domain.CallEvent{Deleted: true}
	require.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, 10*time.Millisecond)
	assert.Nil(t, c.LocalStream())
	assert.Nil(t, c.RemoteStream())
	assert.NoError(t, c.HangUp(context.Background()))
}

func TestHangUpIgnoresMissingRecord(t *testing.T) {
	f := newFixture(t)
	f.expectMedia()
	conn := f.expectConn(nil)

	events := make(chan domain.CallEvent)
	cands := make(chan domain.Candidate)
	var eventsOut <-chan domain.CallEvent = events
	var candsOut <-chan domain.Candidate = cands

	f.sig.EXPECT().GetCall(gomock.Any(), domain.CallID("c1")).Return(&domain.Call{
		ID:    "c1",
		Offer: &domain.Offer{From: "bob", SessionDescription: testOffer},
	}, nil)
	conn.EXPECT().ApplyOfferAndCreateAnswer(testOffer).Return(testAnswer, nil)
	f.sig.EXPECT().PublishAnswer(gomock.Any(), domain.CallID("c1"), testAnswer).Return(nil)
	f.sig.EXPECT().WatchCall(gomock.Any(), domain.CallID("c1")).Return(eventsOut, nil)
	f.sig.EXPECT().WatchCandidates(gomock.Any(), domain.CallID("c1"), domain.OfferCandidates).Return(candsOut, nil)
	f.sig.EXPECT().EndCall(gomock.Any(), domain.CallID("c1")).Return(domain.ErrCallNotFound)

	c := f.client()
	require.NoError(t, c.JoinCall(context.Background(), "c1"))
	assert.Equal(t, StateAnswerSent, c.State())
	assert.Equal(t, domain.CallID("c1"), c.CallID())

	require.NoError(t, c.HangUp(context.Background()))
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, c.CallID())
}

func TestToggleWithoutCall(t *testing.T) {
	c := newFixture(t).client()
	_, err := c.ToggleMute()
	assert.ErrorIs(t, err, ErrNoActiveCall)
	_, err = c.ToggleVideo()
	assert.ErrorIs(t, err, ErrNoActiveCall)
	assert.NoError(t, c.HangUp(context.Background()))
	assert.Equal(t, StateIdle, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "requesting-media", StateRequestingMedia.String())
	assert.Equal(t, "in-call", StateInCall.String())
	assert.False(t, StateClosed.Active())
	assert.True(t, StateOfferSent.Active())
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
