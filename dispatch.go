package voiceai

import (
	"context"
	"fmt"
	"sync"

	"github.com/ankit-yadav1234/voiceai/shared"
	"github.com/bytedance/sonic"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"
)

// DispatchAPI is the slice of the vendor dispatch client this service uses.
// Kept narrow so the routes can be tested against a fake upstream.
type DispatchAPI interface {
	CreateDispatch(ctx context.Context, req *livekit.CreateAgentDispatchRequest) (*livekit.AgentDispatch, error)
	ListDispatch(ctx context.Context, req *livekit.ListAgentDispatchRequest) (*livekit.ListAgentDispatchResponse, error)
	DeleteDispatch(ctx context.Context, req *livekit.DeleteAgentDispatchRequest) (*livekit.AgentDispatch, error)
}

// DispatchService asks the realtime service to place, enumerate or remove
// an agent dispatch for a room. Each operation validates caller input, then
// configuration, before the upstream client is ever touched.
type DispatchService struct {
	logger shared.LoggerAdapter
	cfg    *Config

	apiOnce sync.Once
	api     DispatchAPI
}

// NewDispatchService wires the service. api may be nil, in which case the
// vendor client is built lazily against the validated config.
func NewDispatchService(logger shared.LoggerAdapter, cfg *Config, api DispatchAPI) (*DispatchService, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	return &DispatchService{logger: logger, cfg: cfg, api: api}, nil
}

// client resolves the upstream exactly once; handlers run concurrently, so
// the lazy construction is guarded.
func (s *DispatchService) client() DispatchAPI {
	s.apiOnce.Do(func() {
		if s.api == nil {
			s.api = lksdk.NewAgentDispatchServiceClient(s.cfg.DispatchHost(), s.cfg.APIKey, s.cfg.APISecret)
		}
	})
	return s.api
}

// NormalizeMetadata serializes object metadata to its JSON string form and
// passes strings through unchanged, so the call is idempotent on
// already-serialized input.
func NormalizeMetadata(metadata any) (string, error) {
	switch m := metadata.(type) {
	case nil:
		return "", nil
	case string:
		return m, nil
	default:
		raw, err := sonic.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("serializing metadata: %w", err)
		}
		return string(raw), nil
	}
}

func (s *DispatchService) Create(ctx context.Context, roomName, agentName string, metadata any) (*livekit.AgentDispatch, error) {
	var missing []string
	if roomName == "" {
		missing = append(missing, "roomName")
	}
	if agentName == "" {
		missing = append(missing, "agentName")
	}
	if len(missing) > 0 {
		return nil, shared.NewValidationError(missing...)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	meta, err := NormalizeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	dispatch, err := s.client().CreateDispatch(ctx, &livekit.CreateAgentDispatchRequest{
		Room:      roomName,
		AgentName: agentName,
		Metadata:  meta,
	})
	if err != nil {
		return nil, &shared.UpstreamError{Op: "creating agent dispatch", Err: err}
	}
	s.logger.Info(
		"dispatch created",
		zap.String("dispatchId", dispatch.Id),
		zap.String("room", roomName),
		zap.String("agent", agentName),
	)
	return dispatch, nil
}

func (s *DispatchService) List(ctx context.Context, roomName string) ([]*livekit.AgentDispatch, error) {
	if roomName == "" {
		return nil, shared.NewValidationError("roomName")
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.client().ListDispatch(ctx, &livekit.ListAgentDispatchRequest{Room: roomName})
	if err != nil {
		return nil, &shared.UpstreamError{Op: "listing agent dispatches", Err: err}
	}
	dispatches := resp.AgentDispatches
	if dispatches == nil {
		dispatches = []*livekit.AgentDispatch{}
	}
	s.logger.Debug(
		"dispatches listed",
		zap.Int("count", len(dispatches)),
		zap.String("room", roomName),
	)
	return dispatches, nil
}

// Delete removes a dispatch by (room, id). A missing target surfaces as the
// vendor's own error; it is not treated specially here.
func (s *DispatchService) Delete(ctx context.Context, roomName, dispatchID string) error {
	var missing []string
	if roomName == "" {
		missing = append(missing, "roomName")
	}
	if dispatchID == "" {
		missing = append(missing, "dispatchId")
	}
	if len(missing) > 0 {
		return shared.NewValidationError(missing...)
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if _, err := s.client().DeleteDispatch(ctx, &livekit.DeleteAgentDispatchRequest{
		DispatchId: dispatchID,
		Room:       roomName,
	}); err != nil {
		return &shared.UpstreamError{Op: "deleting agent dispatch", Err: err}
	}
	s.logger.Info(
		"dispatch deleted",
		zap.String("dispatchId", dispatchID),
		zap.String("room", roomName),
	)
	return nil
}
