package connect

import (
	"context"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the player service.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption

	mu      sync.Mutex
	clients map[string]*connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the server at baseURL that sends token
// with every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithInterceptors(&tokenInterceptor{token: token})}, opts...)
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		clients:    make(map[string]*connect.Client[structpb.Struct, structpb.Struct]),
	}
}

func (c *Client) client(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[procedure]; ok {
		return cl
	}
	cl := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
	c.clients[procedure] = cl
	return cl
}

// Call invokes a unary procedure.
func (c *Client) Call(ctx context.Context, procedure string, params map[string]any) (map[string]any, error) {
	msg, err := structpb.NewStruct(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	res, err := c.client(procedure).CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

// Subscribe receives notifications until ctx is done, the server closes the
// stream or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(map[string]any) error) error {
	stream, err := c.client(SubscribeProcedure).CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg().AsMap()); err != nil {
			return err
		}
	}
	return stream.Err()
}
