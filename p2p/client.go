// Package p2p implements the gossip/sync protocol (C6): broadcasting new
// transactions and blocks to peers, and the pull-based ancestry-scan sync
// that reconciles a node's chain with a peer's.
package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boocoin/boocoin/chain"
	"github.com/boocoin/boocoin/common"
	"github.com/boocoin/boocoin/log"
	"github.com/boocoin/boocoin/metrics"
)

const (
	broadcastTimeout = 5 * time.Second
	historyTimeout   = 10 * time.Second
	bodyTimeout      = 60 * time.Second
)

// Client issues outbound HTTP requests to peers: broadcasts (fire and
// forget, short timeout) and the pull requests the sync protocol needs
// (longer timeouts, since history/body payloads can be larger).
type Client struct {
	broadcastHTTP *http.Client
	historyHTTP   *http.Client
	bodyHTTP      *http.Client
	selfEndpoint  string
	logger        log.Logger
}

// NewClient builds a Client. selfEndpoint is announced to peers inside
// block-broadcast payloads so they know who to sync back against.
func NewClient(selfEndpoint string) *Client {
	return &Client{
		broadcastHTTP: &http.Client{Timeout: broadcastTimeout},
		historyHTTP:   &http.Client{Timeout: historyTimeout},
		bodyHTTP:      &http.Client{Timeout: bodyTimeout},
		selfEndpoint:  selfEndpoint,
		logger:        log.New("module", "p2p"),
	}
}

func peerURL(peer, path string) string {
	if !hasScheme(peer) {
		peer = "http://" + peer
	}
	return peer + path
}

func hasScheme(peer string) bool {
	u, err := url.Parse(peer)
	return err == nil && u.Scheme != ""
}

// broadcastTransactionTo POSTs an unconfirmed transaction to one peer.
// Failures are PeerUnavailableError, logged at warn by the caller — they
// never propagate to local state.
func (c *Client) broadcastTransactionTo(peer string, tx chain.UnconfirmedTransaction) error {
	body, err := json.Marshal(chain.ToWireUnconfirmed(tx))
	if err != nil {
		return err
	}
	return c.post(c.broadcastHTTP, peer, "/p2p/transmit_transaction/", body, nil)
}

// broadcastBlockTo POSTs {block, node} to one peer.
func (c *Client) broadcastBlockTo(peer string, block *chain.Block) error {
	payload := struct {
		Block chain.WireBlock `json:"block"`
		Node  string          `json:"node"`
	}{Block: chain.ToWireBlock(block), Node: c.selfEndpoint}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.post(c.broadcastHTTP, peer, "/p2p/transmit_block/", body, nil)
}

// BroadcastTransaction fans a transaction out to every peer, sequentially
// per spec.md (broadcasts are best-effort and independent; failures are
// logged and never returned).
func (c *Client) BroadcastTransaction(peers []string, tx chain.UnconfirmedTransaction) {
	for _, peer := range peers {
		if err := c.broadcastTransactionTo(peer, tx); err != nil {
			c.logger.Warn("broadcast transaction failed", "peer", peer, "err", err)
		}
	}
}

// BroadcastBlock fans a block out to every peer.
func (c *Client) BroadcastBlock(peers []string, block *chain.Block) {
	for _, peer := range peers {
		if err := c.broadcastBlockTo(peer, block); err != nil {
			c.logger.Warn("broadcast block failed", "peer", peer, "err", err)
			metrics.BlocksReceived.WithLabelValues("broadcast_failed").Inc()
		}
	}
}

// historyResponse is the JSON shape of GET /p2p/blockchain_history/.
type historyResponse struct {
	Blocks []string `json:"blocks"`
}

// FetchHistory fetches up to 100 ancestor ids from peer, starting at the
// peer's active block (before == "") or walking backward from before. The
// head page uses the history timeout; deeper pages use the longer body
// timeout.
func (c *Client) FetchHistory(peer string, before string) ([]string, error) {
	path := "/p2p/blockchain_history/"
	httpClient := c.historyHTTP
	if before != "" {
		path += "?before=" + url.QueryEscape(before)
		httpClient = c.bodyHTTP
	}
	req, err := http.NewRequest(http.MethodGet, peerURL(peer, path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &common.PeerUnavailableError{Peer: peer, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &common.PeerUnavailableError{Peer: peer, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &common.PeerUnavailableError{Peer: peer, Err: err}
	}
	return out.Blocks, nil
}

// FetchBlocks fetches the full bodies of ids from peer via POST /p2p/blocks/.
func (c *Client) FetchBlocks(peer string, ids []string) (map[string]chain.WireBlock, error) {
	reqBody, err := json.Marshal(struct {
		Blocks []string `json:"blocks"`
	}{Blocks: ids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, peerURL(peer, "/p2p/blocks/"), bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.bodyHTTP.Do(req)
	if err != nil {
		return nil, &common.PeerUnavailableError{Peer: peer, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &common.PeerUnavailableError{Peer: peer, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var out map[string]chain.WireBlock
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &common.PeerUnavailableError{Peer: peer, Err: err}
	}
	return out, nil
}

func (c *Client) post(client *http.Client, peer, path string, body []byte, out interface{}) error {
	req, err := http.NewRequest(http.MethodPost, peerURL(peer, path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return &common.PeerUnavailableError{Peer: peer, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &common.PeerUnavailableError{Peer: peer, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
