package api

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// NewHeadHandler is called with the block number of each new chain head.
type NewHeadHandler func(blockNumber uint64)

// BlockHeadsClient subscribes to newHeads over a Polygon WebSocket RPC
// endpoint and reports new block heights. Used by the scanner's live tail;
// when no WS endpoint is configured the scanner falls back to polling.
type BlockHeadsClient struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	onHead NewHeadHandler

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBlockHeadsClient creates a new-head subscriber for the given ws:// or
// wss:// endpoint.
func NewBlockHeadsClient(url string, onHead NewHeadHandler) *BlockHeadsClient {
	return &BlockHeadsClient{
		url:    url,
		onHead: onHead,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// SetHandler replaces the head callback. Must be called before Start.
func (c *BlockHeadsClient) SetHandler(onHead NewHeadHandler) {
	c.onHead = onHead
}

// Start connects and begins delivering head notifications. The connection is
// re-established with backoff if it drops.
func (c *BlockHeadsClient) Start() error {
	if c.running {
		return fmt.Errorf("block heads client already running")
	}

	if err := c.connect(); err != nil {
		return err
	}

	c.running = true
	go c.readLoop()

	log.Printf("[BlockWS] Subscribed to newHeads on %s", c.url)
	return nil
}

// Stop closes the connection. No handler calls are made after Stop returns.
func (c *BlockHeadsClient) Stop() {
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	<-c.doneCh
	log.Printf("[BlockWS] Stopped")
}

func (c *BlockHeadsClient) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []interface{}{"newHeads"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe newHeads: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *BlockHeadsClient) readLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Printf("[BlockWS] Read error: %v, reconnecting in 2s", err)
			time.Sleep(2 * time.Second)
			if err := c.connect(); err != nil {
				log.Printf("[BlockWS] Reconnect failed: %v", err)
			}
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *BlockHeadsClient) handleMessage(msg []byte) {
	var notif struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Number string `json:"number"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(msg, &notif); err != nil {
		return
	}
	if notif.Method != "eth_subscription" || notif.Params.Result.Number == "" {
		return // subscription ack or unrelated message
	}

	num, err := strconv.ParseUint(strings.TrimPrefix(notif.Params.Result.Number, "0x"), 16, 64)
	if err != nil {
		return
	}

	select {
	case <-c.stopCh:
		return
	default:
	}
	if c.onHead != nil {
		c.onHead(num)
	}
}
