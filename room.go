package voiceai

import (
	"context"
	"fmt"

	"github.com/ankit-yadav1234/voiceai/shared"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

// attrAgentState is the participant attribute the hosted agent stack uses
// to publish its lifecycle state.
const attrAgentState = "lk.agent.state"

// SampleWriteFunc feeds one encoded audio sample into a published track.
type SampleWriteFunc func(sample media.Sample) error

// MicPublisher is implemented by room sessions that can carry the local
// microphone.
type MicPublisher interface {
	PublishMicTrack() (SampleWriteFunc, error)
}

// LiveKitConnector opens rooms through the vendor SDK and adapts its
// callbacks onto RoomEvents.
type LiveKitConnector struct {
	logger shared.LoggerAdapter
}

func NewLiveKitConnector(logger shared.LoggerAdapter) (*LiveKitConnector, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	return &LiveKitConnector{logger: logger}, nil
}

type liveKitSession struct {
	room *lksdk.Room
}

var _ RoomSession = (*liveKitSession)(nil)
var _ MicPublisher = (*liveKitSession)(nil)

func (s *liveKitSession) Disconnect() {
	s.room.Disconnect()
}

// PublishMicTrack publishes an opus track for the local participant and
// returns the writer the capture loop feeds.
func (s *liveKitSession) PublishMicTrack() (SampleWriteFunc, error) {
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local audio track: %w", err)
	}
	if _, err := s.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		return nil, fmt.Errorf("publishing audio track: %w", err)
	}
	return func(sample media.Sample) error {
		return track.WriteSample(sample, nil)
	}, nil
}

// Connect joins the room with the minted credential and wires the SDK
// callbacks onto events. The returned session supports MicPublisher.
func (c *LiveKitConnector) Connect(ctx context.Context, details *ConnectionDetails, events *RoomEvents) (RoomSession, error) {
	if details == nil || details.Token == "" || details.URL == "" {
		return nil, shared.ErrNoConnectionDetails
	}
	if events == nil {
		events = &RoomEvents{}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				user, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				var msg InboundMessage
				if err := msg.UnmarshalJSON(user.Payload); err != nil {
					c.logger.Debug(
						"ignoring undecodable data packet",
						zap.Error(err),
						zap.String("sender", params.SenderIdentity),
					)
					return
				}
				msg.ResolveLocality(params.SenderIdentity, details.ParticipantName)
				if events.OnMessage != nil {
					events.OnMessage(msg)
				}
			},
			OnAttributesChanged: func(changed map[string]string, p lksdk.Participant) {
				state, ok := changed[attrAgentState]
				if !ok {
					return
				}
				c.logger.Debug(
					"agent state attribute changed",
					zap.String("state", state),
					zap.String("participant", p.Identity()),
				)
				if events.OnAgentState != nil {
					events.OnAgentState(AgentState(state))
				}
			},
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				c.logger.Info(
					"subscribed to remote audio track",
					zap.String("codec", track.Codec().MimeType),
					zap.String("participant", rp.Identity()),
				)
				if events.OnTrack != nil {
					go events.OnTrack(track)
				}
			},
		},
		OnDisconnected: func() {
			if events.OnDisconnected != nil {
				events.OnDisconnected()
			}
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(details.URL, details.Token, cb)
	if err != nil {
		if events.OnError != nil {
			events.OnError(err)
		}
		return nil, &shared.UpstreamError{Op: "connecting to room", Err: err}
	}
	c.logger.Info("room connection established", zap.String("room", details.RoomName))
	return &liveKitSession{room: room}, nil
}
