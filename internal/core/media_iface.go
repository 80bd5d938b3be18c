package core

import (
	"context"
	"errors"

	"github.com/dkeye/callrelay/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=media_iface.go -destination=mocks/media_mock.go -package=mocks

var (
	ErrPermissionDenied = errors.New("media permission denied")
	ErrBusy             = errors.New("a call is already in progress")
)

// MediaConstraints selects which kinds of local media to capture.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// MediaDevices is the capture side, the equivalent of getUserMedia.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints MediaConstraints) (LocalStream, error)
}

// LocalTrack is one captured track that can be attached to a connection.
type LocalTrack interface {
	Kind() webrtc.RTPCodecType
	Track() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

type LocalStream interface {
	ID() string
	Tracks() []LocalTrack
	Stop()
}

// MediaConnection is one peer connection carrying a single call.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	AddLocalTrack(track LocalTrack) error
	// CreateOffer creates an offer and sets it as local description.
	CreateOffer() (domain.SessionDescription, error)
	ApplyOfferAndCreateAnswer(offer domain.SessionDescription) (domain.SessionDescription, error)
	ApplyAnswer(answer domain.SessionDescription) error
	HasRemoteDescription() bool
	// AddICECandidate applies a remote candidate, queueing it until a remote
	// description is set.
	AddICECandidate(c domain.Candidate) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(domain.Candidate))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnClosed sets a callback for cleanup of the media session.
	OnClosed(func())
}

type ConnectionFactory interface {
	NewConnection(label string) (MediaConnection, error)
}
