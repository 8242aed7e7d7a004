// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/equiforge/equiforge/business/web/errs"
	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
	"github.com/equiforge/equiforge/foundation/events"
	"github.com/equiforge/equiforge/foundation/nameservice"
	"github.com/equiforge/equiforge/foundation/web"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

func (h Handlers) encodeAddress(netPrefix byte, pkh signature.PubKeyHash) string {
	return signature.EncodeAddress(netPrefix, pkh)
}

func (h Handlers) lookupName(address string) string {
	name := h.NS.Lookup(address)
	if name == address {
		return ""
	}
	return name
}

// =============================================================================

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

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Tip returns the active chain tip summary.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	entry := h.State.RetrieveTip()

	utxoCount, err := h.State.QueryUtxoCount()
	if err != nil {
		return err
	}
	knownBlocks, err := h.State.QueryKnownBlockCount()
	if err != nil {
		return err
	}

	resp := tip{
		Hash:           entry.Hash().String(),
		Height:         entry.Height,
		Bits:           entry.Header.Bits,
		CumulativeWork: entry.CumulativeWork.Hex(),
		MempoolCount:   h.State.MempoolCount(),
		UtxoCount:      utxoCount,
		KnownBlocks:    knownBlocks,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitWalletTransaction adds a new wallet transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var raw hexutil.Bytes
	if err := web.Decode(r, &raw); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbTx, err := database.DecodeTx(raw)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode transaction: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("add wallet tran", "traceid", v.TraceID, "txid", dbTx.TxID())
	if err := h.State.UpsertWalletTransaction(dbTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}{
		Status: "transaction added to mempool",
		TxID:   dbTx.TxID().String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	records := h.State.RetrieveMempool()

	pool := make([]pooledTx, len(records))
	for i, record := range records {
		pool[i] = h.toPooledTx(record)
	}

	return web.Respond(ctx, w, pool, http.StatusOK)
}

// Balance sums the unspent outputs locked to the address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	pkh, err := signature.DecodeAddress(h.State.RetrieveGenesis().NetPrefix, address)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	amount, err := h.State.QueryBalance(pkh)
	if err != nil {
		return err
	}

	resp := balance{
		Address: address,
		Name:    h.lookupName(address),
		Balance: amount,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Unspent returns every unspent output locked to the address for coin
// selection.
func (h Handlers) Unspent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	pkh, err := signature.DecodeAddress(h.State.RetrieveGenesis().NetPrefix, address)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	owned, err := h.State.QueryUnspentByOwner(pkh)
	if err != nil {
		return err
	}

	utxos := make([]utxo, 0, len(owned))
	for op, entry := range owned {
		utxos = append(utxos, utxo{
			TxID:     op.TxID.String(),
			Vout:     op.Vout,
			Value:    entry.Value,
			Height:   entry.Height,
			Coinbase: entry.IsCoinbase,
		})
	}

	return web.Respond(ctx, w, utxos, http.StatusOK)
}

// BlocksByHeight returns the active chain blocks in the requested range.
// The "latest" keyword selects the tip.
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" {
		fromStr = strconv.FormatUint(uint64(state.QueryLatest), 10)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" {
		toStr = strconv.FormatUint(uint64(state.QueryLatest), 10)
	}

	from, err := strconv.ParseUint(fromStr, 10, 32)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 32)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if uint32(from) == state.QueryLatest {
		from = uint64(h.State.RetrieveTip().Height)
	}

	dbBlocks := h.State.QueryBlocksByHeight(uint32(from), uint32(to))

	blocks := make([]block, len(dbBlocks))
	for i, dbBlock := range dbBlocks {
		blocks[i] = h.toBlock(dbBlock, uint32(from)+uint32(i))
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByHash returns the block with the given hash from any known
// branch.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	data, err := hexutil.Decode(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	hash, err := signature.ToHash(data)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlock, err := h.State.QueryBlockByHash(hash)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	entry, err := h.State.QueryIndexEntry(hash)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, h.toBlock(dbBlock, entry.Height), http.StatusOK)
}

// SignalMining signals the node to start a mining operation.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.State.Worker == nil {
		return errs.NewTrusted(fmt.Errorf("no worker registered"), http.StatusServiceUnavailable)
	}

	h.State.Worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signaled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
