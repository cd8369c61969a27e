package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/peer"
)

// baseURL is the url pattern for the private node endpoints of a peer.
const baseURL = "http://%s/v1/node"

// requestTimeout bounds every exchange with a peer. A peer that does not
// answer within this window counts as a failed exchange.
const requestTimeout = 5 * time.Second

// MsgVersion identifies the wire format of the node to node messages. A
// message carrying a different version is rejected before processing.
const MsgVersion = 1

// NetworkError indicates a peer could not be reached or did not answer
// within the request timeout. Only these failures count against a peer;
// a peer that answers with a rejection is healthy.
type NetworkError struct {
	Host string
	Err  error
}

// Error implements the error interface.
func (ne *NetworkError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %s", ne.Host, ne.Err)
}

// Unwrap supports errors.Is checks against the wrapped reason.
func (ne *NetworkError) Unwrap() error {
	return ne.Err
}

// IsNetworkError checks if the specified error indicates an unreachable peer.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// TxMsg is the wire record announcing a new transaction to a peer.
type TxMsg struct {
	Version int         `json:"version" validate:"required,eq=1"`
	Tx      database.Tx `json:"tx" validate:"required"`
}

// BlockMsg is the wire record proposing a newly mined block to a peer. The
// origin host lets the receiver pull the blocks it is missing when the
// proposal does not extend its tip.
type BlockMsg struct {
	Version int                `json:"version" validate:"required,eq=1"`
	Origin  string             `json:"origin"`
	Block   database.BlockData `json:"block" validate:"required"`
}

// BlocksMsg is the wire record returning a range of blocks to a peer that
// asked for them.
type BlocksMsg struct {
	Version int                  `json:"version" validate:"required,eq=1"`
	Blocks  []database.BlockData `json:"blocks"`
}

// =============================================================================

// NetSendBlockToPeers takes a newly mined block and sends it to all known
// peers. Peers that keep failing to answer are dropped from the set.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	msg := BlockMsg{Version: MsgVersion, Origin: s.host, Block: database.NewBlockData(block)}

	var firstErr error
	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

		if err := send(http.MethodPost, url, msg, nil); err != nil {
			s.recordPeerFailure(pr, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", pr.Host, err)
			}
			continue
		}

		s.knownPeers.RecordSuccess(pr)
		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr)
	}

	return firstErr
}

// NetSendTxToPeers shares a new transaction with the known peers.
func (s *State) NetSendTxToPeers(tx database.Tx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	msg := TxMsg{Version: MsgVersion, Tx: tx}

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		if err := send(http.MethodPost, url, msg, nil); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: %s", err)
			s.recordPeerFailure(pr, err)
			continue
		}
		s.knownPeers.RecordSuccess(pr)
	}
}

// NetRequestPeerStatus asks a peer for its current tip and its peer list.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := send(http.MethodGet, url, nil, &ps); err != nil {
		s.recordPeerFailure(pr, err)
		return peer.PeerStatus{}, err
	}
	s.knownPeers.RecordSuccess(pr)

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: latest-blknum[%d]: peer-list[%s]", pr, ps.LatestBlockNumber, ps.KnownPeers)

	return ps, nil
}

// NetRequestPeerMempool asks the peer for the transactions in their mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]database.Tx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var pool []database.Tx
	if err := send(http.MethodGet, url, nil, &pool); err != nil {
		s.recordPeerFailure(pr, err)
		return nil, err
	}
	s.knownPeers.RecordSuccess(pr)

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(pool))

	return pool, nil
}

// NetRequestPeerBlocks queries the specified peer for the blocks this node
// does not have and applies them to the local chain. When the peer's blocks
// do not extend this node's tip, the peer's full chain is requested and
// evaluated as a replacement.
func (s *State) NetRequestPeerBlocks(pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerBlocks: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerBlocks: completed: %s", pr)

	from := s.db.Height() + 1
	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, pr.Host), from)

	var msg BlocksMsg
	if err := send(http.MethodGet, url, nil, &msg); err != nil {
		s.recordPeerFailure(pr, err)
		return err
	}
	s.knownPeers.RecordSuccess(pr)

	s.evHandler("state: NetRequestPeerBlocks: found blocks[%d]", len(msg.Blocks))

	for _, blockData := range msg.Blocks {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return err
		}

		if err := s.ProcessProposedBlock(block); err != nil {
			if database.IsValidationError(err) {
				return s.netRequestPeerChain(pr)
			}
			return err
		}
	}

	return nil
}

// NetRequestAddPeer announces this node to the specified peer so both sides
// know each other.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	s.evHandler("state: NetRequestAddPeer: started: %s", pr)
	defer s.evHandler("state: NetRequestAddPeer: completed: %s", pr)

	url := fmt.Sprintf("%s/peers/add", fmt.Sprintf(baseURL, pr.Host))

	if err := send(http.MethodPost, url, peer.New(s.host), nil); err != nil {
		s.recordPeerFailure(pr, err)
		return err
	}
	s.knownPeers.RecordSuccess(pr)

	return nil
}

// netRequestPeerChain pulls the peer's full chain and runs it through the
// replacement decision. The current chain survives unless the peer's chain
// carries strictly more work and validates end to end.
func (s *State) netRequestPeerChain(pr peer.Peer) error {
	s.evHandler("state: netRequestPeerChain: started: %s", pr)
	defer s.evHandler("state: netRequestPeerChain: completed: %s", pr)

	url := fmt.Sprintf("%s/block/list/0/latest", fmt.Sprintf(baseURL, pr.Host))

	var msg BlocksMsg
	if err := send(http.MethodGet, url, nil, &msg); err != nil {
		s.recordPeerFailure(pr, err)
		return err
	}
	s.knownPeers.RecordSuccess(pr)

	return s.ProcessChainReplacement(msg.Blocks)
}

// recordPeerFailure bumps the failure count for the peer when the error
// indicates the peer could not be reached, and reports when the peer has
// been dropped from the set. Rejections from a responsive peer don't count.
func (s *State) recordPeerFailure(pr peer.Peer, err error) {
	if !IsNetworkError(err) {
		return
	}

	if s.knownPeers.RecordFailure(pr) {
		s.evHandler("state: recordPeerFailure: dropped unresponsive peer[%s]", pr)
	}
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	client := http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return &NetworkError{Host: req.URL.Host, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
