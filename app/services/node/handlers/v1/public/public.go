// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"time"

	v1 "github.com/tessercoin/tesser/business/web/v1"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/state"
	"github.com/tessercoin/tesser/foundation/events"
	"github.com/tessercoin/tesser/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", tx)
	if err := h.State.SubmitWalletTransaction(tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.QueryMempool()

	trans := make([]tx, len(txs))
	for i, tran := range txs {
		trans[i] = newTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Balance returns the spendable balance for the specified address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	bal := balance{
		LatestBlock: h.State.RetrieveLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Address:     address,
		Balance:     h.State.QueryBalance(address),
	}

	return web.Respond(ctx, w, bal, http.StatusOK)
}

// UnspentOutputs returns the unspent outputs locked to the specified address.
func (h Handlers) UnspentOutputs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	utxos := h.State.QueryUnspentOutputs(address)

	outs := make([]unspentOutput, len(utxos))
	for i, u := range utxos {
		outs[i] = unspentOutput{
			TxID:        u.OutPoint.TxID,
			OutputIndex: u.OutPoint.OutputIndex,
			Value:       u.Output.Value,
			PubKeyHash:  u.Output.PubKeyHash,
		}
	}

	return web.Respond(ctx, w, outs, http.StatusOK)
}

// BlockByHash returns the block with the specified header hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash := web.Param(r, "hash")

	blk, err := h.State.QueryBlockByHash(hash)
	if err != nil {
		return v1.NewRequestError(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, newBlock(blk), http.StatusOK)
}

// BlocksByAddress returns the blocks that pay to or spend from the specified
// address, or all blocks when no address is specified.
func (h Handlers) BlocksByAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	dbBlocks := h.State.QueryBlocksByAddress(address)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = newBlock(blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}
