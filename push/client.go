package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// DialOptions tune [Dial].
type DialOptions struct {
	// Origin is sent as the Origin header when set.
	Origin     string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Buffer is the signal channel capacity. Default 8.
	Buffer int
}

// Client is one subscription to a hub.
type Client struct {
	conn    *websocket.Conn
	signals chan Signal
	log     *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the hub at url, authenticating with accessToken.
func Dial(ctx context.Context, url, accessToken string, opts DialOptions) (*Client, error) {
	if accessToken == "" {
		return nil, errors.New("push: access token required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 8
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameBytes)

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		signals: make(chan Signal, opts.Buffer),
		log:     opts.Logger,
		ctx:     runCtx,
		cancel:  cancel,
	}
	go c.readLoop()
	return c, nil
}

// Signals returns the received signals. The channel is closed when the
// connection ends.
func (c *Client) Signals() <-chan Signal {
	return c.signals
}

// Close ends the subscription. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "bye")
		if websocket.CloseStatus(c.closeErr) == websocket.StatusNormalClosure {
			c.closeErr = nil
		}
	})
	return c.closeErr
}

func (c *Client) readLoop() {
	defer close(c.signals)
	for {
		mt, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Debug("push connection ended", zap.Int("close_status", int(websocket.CloseStatus(err))), zap.Error(err))
			}
			return
		}
		if mt != websocket.MessageText {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("push frame is not JSON", zap.Error(err))
			continue
		}
		sig, ok := ParseSignal(msg.Type)
		if !ok {
			c.log.Debug("unknown push signal", zap.String("type", msg.Type))
			continue
		}
		select {
		case c.signals <- sig:
		case <-c.ctx.Done():
			return
		}
	}
}
