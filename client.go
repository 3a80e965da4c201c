package voiceai

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ankit-yadav1234/voiceai/shared"
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// APIClient calls the token and dispatch routes the way the browser front
// end does: one request per operation, no retries, no caching.
type APIClient struct {
	logger  shared.LoggerAdapter
	baseURL *url.URL
	client  *fasthttp.Client
}

func NewAPIClient(logger shared.LoggerAdapter, baseURL string) (*APIClient, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return &APIClient{
		logger:  logger,
		baseURL: parsed,
		client:  &fasthttp.Client{},
	}, nil
}

// BaseURL is the front end's origin, used for the secure-context check.
func (c *APIClient) BaseURL() string {
	return c.baseURL.String()
}

// do executes one request, honoring ctx while the response is in flight.
// Cancellation only abandons the wait; the request itself resolves or
// rejects on its own, matching the browser fetch semantics. The pooled
// request and response stay owned by the abandoned call until it finishes,
// so they never go back to the pools while still being written to.
func (c *APIClient) do(ctx context.Context, build func(req *fasthttp.Request), handle func(resp *fasthttp.Response) error) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	build(req)

	errC := make(chan error, 1)
	go func() {
		errC <- c.client.Do(req, resp)
	}()
	select {
	case <-ctx.Done():
		go func() {
			<-errC
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		return ctx.Err()
	case err := <-errC:
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		if err != nil {
			return fmt.Errorf("performing HTTP request: %w", err)
		}
		return handle(resp)
	}
}

func decodeAPIError(resp *fasthttp.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := sonic.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
}

// FetchToken asks the token route for one connection credential. Empty
// names let the server pick the defaults.
func (c *APIClient) FetchToken(ctx context.Context, room, participant string) (*ConnectionDetails, error) {
	u := c.baseURL.JoinPath("/api/token")
	q := u.Query()
	if room != "" {
		q.Set("room", room)
	}
	if participant != "" {
		q.Set("participant", participant)
	}
	u.RawQuery = q.Encode()

	details := new(ConnectionDetails)
	err := c.do(ctx, func(req *fasthttp.Request) {
		req.SetRequestURI(u.String())
		req.Header.SetMethod(fasthttp.MethodGet)
	}, func(resp *fasthttp.Response) error {
		if resp.StatusCode() != fasthttp.StatusOK {
			return decodeAPIError(resp)
		}
		if err := sonic.Unmarshal(resp.Body(), details); err != nil {
			return fmt.Errorf("decoding token response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug(
		"fetched connection token",
		zap.String("room", details.RoomName),
		zap.String("participant", details.ParticipantName),
	)
	return details, nil
}

// CreateDispatch posts the dispatch request for an agent to join roomName.
func (c *APIClient) CreateDispatch(ctx context.Context, roomName, agentName string, metadata any) error {
	payload, err := sonic.Marshal(map[string]any{
		"roomName":  roomName,
		"agentName": agentName,
		"metadata":  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshaling dispatch request: %w", err)
	}

	return c.do(ctx, func(req *fasthttp.Request) {
		req.SetRequestURI(c.baseURL.JoinPath("/api/dispatch").String())
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}, func(resp *fasthttp.Response) error {
		if resp.StatusCode() != fasthttp.StatusOK {
			return decodeAPIError(resp)
		}
		return nil
	})
}
