package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkg "github.com/ankit-yadav1234/voiceai"
	"github.com/ankit-yadav1234/voiceai/shared"
	"github.com/ankit-yadav1234/voiceai/tools"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const colorReset = "\033[0m"

// CLIAgent is the terminal front end: it starts a voice session against the
// API server, publishes the microphone, plays the agent's audio and renders
// the live transcript.
type CLIAgent struct {
	logger   shared.LoggerAdapter
	printer  *shared.Printer
	session  *pkg.Session
	micTrack mediadevices.Track

	mu        sync.Mutex
	printed   int
	lastState pkg.AgentState
}

// Spawn wires the session and connects. apiBase is the API server's origin;
// it doubles as the secure-context origin for media capture.
func (a *CLIAgent) Spawn(ctx context.Context, logger shared.LoggerAdapter, apiBase, agentName string, printer *shared.Printer) error {
	if logger == nil {
		return shared.ErrNoLogger
	}
	if printer == nil {
		return errors.New("no printer provided")
	}
	a.logger = logger
	a.printer = printer
	a.logger.Info("spawning CLI agent")
	if err := a.printer.Writeln("🤖 Starting voice session...\n", 0); err != nil {
		a.logger.Error("printing start message", err)
	}

	apiClient, err := pkg.NewAPIClient(logger, apiBase)
	if err != nil {
		a.logger.Error("creating API client", err)
		return err
	}
	connector, err := pkg.NewLiveKitConnector(logger)
	if err != nil {
		a.logger.Error("creating room connector", err)
		return err
	}

	// Getting microphone access and stream
	if err := a.printer.Writeln("🎤 Accessing microphone...", 0); err != nil {
		a.logger.Error("printing microphone access message", err)
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		a.logger.Error("creating opus params", err)
		return err
	}
	micStream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
			c.SampleSize = prop.Int(16)
		},
		Codec: mediadevices.NewCodecSelector(
			mediadevices.WithAudioEncoders(&opusParams),
		),
	})
	if err != nil {
		a.logger.Error("getting microphone stream", err)
		if err := a.printer.Writeln("❌ Unable to access microphone. Please ensure it is connected and permitted.\n", 0); err != nil {
			a.logger.Error("printing microphone failure message", err)
		}
		return err
	}
	audioTracks := micStream.GetAudioTracks()
	if len(audioTracks) == 0 {
		err := errors.New("no audio track found in microphone stream")
		a.logger.Error("no audio track found", err)
		return err
	}
	a.micTrack = audioTracks[0]
	if err := a.printer.Writeln("✅ Microphone access granted.\n", 0); err != nil {
		a.logger.Error("printing microphone success message", err)
	}

	a.session, err = pkg.NewSession(logger, apiClient, apiClient, connector, pkg.SessionConfig{
		AgentName: agentName,
		Origin:    apiClient.BaseURL(),
		OnUpdate:  a.repaint,
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			tools.PlayRemoteAudio(ctx, a.logger, track, 100, 2)
		},
	})
	if err != nil {
		a.logger.Error("creating session", err)
		return err
	}

	if err := a.printer.Writeln("📡 Connecting...", 0); err != nil {
		a.logger.Error("printing connecting message", err)
	}
	if err := a.session.Start(ctx); err != nil {
		if a.session.Insecure() {
			if perr := a.printer.Writeln("🔒 Security restriction: microphone access needs HTTPS or localhost.\n", 0); perr != nil {
				a.logger.Error("printing security restriction message", perr)
			}
		}
		a.logger.Error("starting session", err)
		return err
	}
	details := a.session.Details()
	if err := a.printer.Writeln(fmt.Sprintf("✅ Connected to room %s as %s.\n", details.RoomName, details.ParticipantName), 0); err != nil {
		a.logger.Error("printing connected message", err)
	}

	// Publishing the microphone into the room
	publisher, ok := a.session.Room().(pkg.MicPublisher)
	if !ok {
		return errors.New("room session cannot publish the microphone")
	}
	write, err := publisher.PublishMicTrack()
	if err != nil {
		a.logger.Error("publishing microphone track", err)
		return err
	}
	go tools.StreamLocalAudio(ctx, a.logger, write, a.micTrack, time.Duration(opusParams.Latency))
	a.logger.Info("microphone track published")
	return nil
}

// Done reports the end of the current session.
func (a *CLIAgent) Done() <-chan struct{} {
	return a.session.Done()
}

// Close disconnects and dumps the transcript.
func (a *CLIAgent) Close() error {
	if a.session == nil {
		return nil
	}
	if err := a.session.Disconnect(); err != nil && !errors.Is(err, shared.ErrSessionNotConnected) {
		return err
	}
	transcript, err := pkg.TranscriptYAML(a.session.Messages())
	if err != nil {
		a.logger.Error("rendering transcript", err)
		return nil
	}
	if len(transcript) > 0 {
		if err := a.printer.Writeln("\n📝 Session transcript\n", 0); err != nil {
			a.logger.Error("printing transcript header", err)
		}
		if err := a.printer.Write(string(transcript), 1); err != nil {
			a.logger.Error("printing transcript", err)
		}
	}
	return nil
}

// repaint prints whatever changed since the last update: new transcript
// lines first, then the agent state line. The transcript is recomputed from
// the live message list on every call.
func (a *CLIAgent) repaint() {
	if a.session == nil {
		return
	}
	transcript := a.session.Transcript()
	state := a.session.AgentState()

	a.mu.Lock()
	start := a.printed
	if start > len(transcript) {
		start = 0
	}
	a.printed = len(transcript)
	stateChanged := state != a.lastState
	a.lastState = state
	a.mu.Unlock()

	for _, msg := range transcript[start:] {
		prefix := "🤖"
		if msg.Sender == pkg.SenderUser {
			prefix = "🧑"
		}
		if err := a.printer.Writeln(fmt.Sprintf("%s %s", prefix, msg.Text), 1); err != nil {
			a.logger.Error("printing transcript line", err)
		}
	}
	if stateChanged {
		style := state.Style()
		if err := a.printer.Writeln(fmt.Sprintf("%s● %s%s", style.Color, style.Label, colorReset), 0); err != nil {
			a.logger.Error("printing agent state", err)
		}
	}
}
