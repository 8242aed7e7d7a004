// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/equiforge/equiforge/business/web/errs"
	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/peer"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
	"github.com/equiforge/equiforge/foundation/web"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns this node's tip and peer list so peers can decide
// whether to pull blocks.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip := h.State.RetrieveTip()

	ps := peer.PeerStatus{
		TipHash:        tip.Hash().String(),
		TipHeight:      tip.Height,
		CumulativeWork: tip.CumulativeWork.Hex(),
		KnownPeers:     h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, ps, http.StatusOK)
}

// BlocksByHeight returns the raw active chain blocks in the requested
// range. The "latest" keyword selects the tip.
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

	blocks := h.State.QueryBlocksByHeight(uint32(from), uint32(to))

	raw := make([]hexutil.Bytes, len(blocks))
	for i, block := range blocks {
		raw[i] = block.Encode()
	}

	return web.Respond(ctx, w, raw, http.StatusOK)
}

// SubmitBlock takes a raw block relayed by a peer and runs it through
// full validation.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var raw hexutil.Bytes
	if err := web.Decode(r, &raw); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	block, err := database.DecodeBlock(raw)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode block: %w", err), http.StatusBadRequest)
	}

	status, err := h.State.ProcessSubmittedBlock(block)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: status.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RelayTx takes a raw transaction relayed by a peer and places it in the
// mempool when it validates.
func (h Handlers) RelayTx(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var raw hexutil.Bytes
	if err := web.Decode(r, &raw); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tx, err := database.DecodeTx(raw)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode transaction: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("relay tran", "traceid", v.TraceID, "txid", tx.TxID())
	if err := h.State.UpsertNodeTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// TxList returns the raw transactions currently pooled.
func (h Handlers) TxList(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	records := h.State.RetrieveMempool()

	raw := make([]hexutil.Bytes, len(records))
	for i, record := range records {
		raw[i] = record.Tx.Encode()
	}

	return web.Respond(ctx, w, raw, http.StatusOK)
}

// AddPeer adds the calling node to the known peer list.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if pr.Host != "" && !pr.Match(h.State.RetrieveHost()) {
		if h.State.AddKnownPeer(pr) {
			h.Log.Infow("add peer", "host", pr.Host)
		}
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}
