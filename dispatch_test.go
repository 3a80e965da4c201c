package voiceai

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/ankit-yadav1234/voiceai/shared"
	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatchAPI records upstream calls so the service's ordering rules can
// be asserted without a network.
type fakeDispatchAPI struct {
	createReq *livekit.CreateAgentDispatchRequest
	listReq   *livekit.ListAgentDispatchRequest
	deleteReq *livekit.DeleteAgentDispatchRequest

	createResp *livekit.AgentDispatch
	listResp   *livekit.ListAgentDispatchResponse
	err        error
}

func (f *fakeDispatchAPI) CreateDispatch(_ context.Context, req *livekit.CreateAgentDispatchRequest) (*livekit.AgentDispatch, error) {
	f.createReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.createResp != nil {
		return f.createResp, nil
	}
	return &livekit.AgentDispatch{Id: "dispatch-1", Room: req.Room, AgentName: req.AgentName}, nil
}

func (f *fakeDispatchAPI) ListDispatch(_ context.Context, req *livekit.ListAgentDispatchRequest) (*livekit.ListAgentDispatchResponse, error) {
	f.listReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.listResp != nil {
		return f.listResp, nil
	}
	return &livekit.ListAgentDispatchResponse{}, nil
}

func (f *fakeDispatchAPI) DeleteDispatch(_ context.Context, req *livekit.DeleteAgentDispatchRequest) (*livekit.AgentDispatch, error) {
	f.deleteReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &livekit.AgentDispatch{Id: req.DispatchId, Room: req.Room}, nil
}

func newDispatchService(t *testing.T, cfg *Config, api DispatchAPI) *DispatchService {
	t.Helper()
	svc, err := NewDispatchService(shared.NewNopLogger(), cfg, api)
	require.NoError(t, err)
	return svc
}

func TestNormalizeMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata any
		expected string
	}{
		{
			name:     "Nil",
			metadata: nil,
			expected: "",
		},
		{
			name:     "String passes through",
			metadata: `{"already":"serialized"}`,
			expected: `{"already":"serialized"}`,
		},
		{
			name:     "Object serializes",
			metadata: map[string]any{"k": "v"},
			expected: `{"k":"v"}`,
		},
		{
			name:     "Number serializes",
			metadata: 42,
			expected: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMetadata(tt.metadata)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("Idempotent", func(t *testing.T) {
		once, err := NormalizeMetadata(map[string]any{"k": "v"})
		require.NoError(t, err)
		twice, err := NormalizeMetadata(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})
}

func TestDispatchServiceCreate(t *testing.T) {
	t.Run("Passes normalized metadata upstream", func(t *testing.T) {
		api := new(fakeDispatchAPI)
		svc := newDispatchService(t, testConfig(), api)
		dispatch, err := svc.Create(context.Background(), "room-1", "my-agent", map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.Equal(t, "dispatch-1", dispatch.Id)
		require.NotNil(t, api.createReq)
		assert.Equal(t, "room-1", api.createReq.Room)
		assert.Equal(t, "my-agent", api.createReq.AgentName)
		assert.Equal(t, `{"k":"v"}`, api.createReq.Metadata)
	})

	t.Run("Validation failure never reaches upstream", func(t *testing.T) {
		api := new(fakeDispatchAPI)
		svc := newDispatchService(t, testConfig(), api)
		_, err := svc.Create(context.Background(), "", "", nil)
		var ve *shared.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "roomName and agentName are required", err.Error())
		assert.Nil(t, api.createReq)
	})

	t.Run("Configuration failure never reaches upstream", func(t *testing.T) {
		api := new(fakeDispatchAPI)
		svc := newDispatchService(t, &Config{}, api)
		_, err := svc.Create(context.Background(), "room-1", "my-agent", nil)
		var ce *shared.ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Nil(t, api.createReq)
	})

	t.Run("Upstream failure is wrapped", func(t *testing.T) {
		upstream := errors.New("twirp error unavailable")
		api := &fakeDispatchAPI{err: upstream}
		svc := newDispatchService(t, testConfig(), api)
		_, err := svc.Create(context.Background(), "room-1", "my-agent", nil)
		var ue *shared.UpstreamError
		require.ErrorAs(t, err, &ue)
		assert.ErrorIs(t, err, upstream)
	})
}

func TestDispatchServiceList(t *testing.T) {
	t.Run("Requires room name", func(t *testing.T) {
		api := new(fakeDispatchAPI)
		svc := newDispatchService(t, testConfig(), api)
		_, err := svc.List(context.Background(), "")
		var ve *shared.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "roomName is required", err.Error())
		assert.Nil(t, api.listReq)
	})

	t.Run("Empty room lists as empty slice", func(t *testing.T) {
		svc := newDispatchService(t, testConfig(), new(fakeDispatchAPI))
		dispatches, err := svc.List(context.Background(), "room-1")
		require.NoError(t, err)
		assert.NotNil(t, dispatches)
		assert.Empty(t, dispatches)
	})

	t.Run("Returns upstream dispatches", func(t *testing.T) {
		api := &fakeDispatchAPI{listResp: &livekit.ListAgentDispatchResponse{
			AgentDispatches: []*livekit.AgentDispatch{{Id: "d1"}, {Id: "d2"}},
		}}
		svc := newDispatchService(t, testConfig(), api)
		dispatches, err := svc.List(context.Background(), "room-1")
		require.NoError(t, err)
		require.Len(t, dispatches, 2)
		assert.Equal(t, "room-1", api.listReq.Room)
	})
}

// Concurrent fasthttp handlers share one service; the lazy vendor-client
// construction must be safe to race.
func TestDispatchServiceConcurrentLazyClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	cfg := &Config{URL: "ws://" + ln.Addr().String(), APIKey: "key", APISecret: "secret"}
	svc := newDispatchService(t, cfg, nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.List(context.Background(), "room-1")
			var ue *shared.UpstreamError
			assert.ErrorAs(t, err, &ue)
		}()
	}
	wg.Wait()
}

func TestDispatchServiceDelete(t *testing.T) {
	t.Run("Requires both identifiers", func(t *testing.T) {
		api := new(fakeDispatchAPI)
		svc := newDispatchService(t, testConfig(), api)
		err := svc.Delete(context.Background(), "", "")
		assert.Equal(t, "roomName and dispatchId are required", err.Error())
		assert.Nil(t, api.deleteReq)
	})

	t.Run("Deletes by room and id", func(t *testing.T) {
		api := new(fakeDispatchAPI)
		svc := newDispatchService(t, testConfig(), api)
		require.NoError(t, svc.Delete(context.Background(), "room-1", "d1"))
		require.NotNil(t, api.deleteReq)
		assert.Equal(t, "room-1", api.deleteReq.Room)
		assert.Equal(t, "d1", api.deleteReq.DispatchId)
	})
}
