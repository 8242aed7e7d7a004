package worker

import (
	"context"
	"sync"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/equihash"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation builds a candidate block on the active tip and
// sweeps it for a proof of work.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Once mining starts it keeps going. A canceled attempt rebuilds on
	// the new tip, a solved attempt moves on to the next block.
	defer w.SignalStartMining()

	// If mining is signalled to be cancelled by the block acceptance
	// path, this G can't terminate until it is told it can.
	var wait chan struct{}
	defer func() {
		if wait != nil {
			w.evHandler("worker: runMiningOperation: MINING: termination signal: waiting")
			<-wait
			w.evHandler("worker: runMiningOperation: MINING: termination signal: received")
		}
	}()

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case wait = <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.mineBlock(ctx)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		if err != nil {
			switch {
			case ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
			default:
				w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			}
			return
		}

		status, err := w.state.ProcessSubmittedBlock(block)
		if err != nil {
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			return
		}

		w.evHandler("worker: runMiningOperation: MINING: mined block[%s] status[%s]", block.Hash(), status)

		// Propose the new block to the network.
		w.SignalShareBlock(block)
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}

// =============================================================================

// mineBlock builds a template on the active tip and splits the search
// space across parallel threads until one finds a header hash under the
// current difficulty or the context is canceled.
func (w *Worker) mineBlock(ctx context.Context) (database.Block, error) {
	template, err := w.state.BuildTemplate(w.state.RetrievePayoutHash(), w.state.RetrieveMinerTag())
	if err != nil {
		return database.Block{}, err
	}

	w.evHandler("worker: mineBlock: height[%d] bits[%d] threads[%d]",
		template.Height, template.Block.Header.Bits, w.threads)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan database.Block, 1)

	var wg sync.WaitGroup
	wg.Add(w.threads)
	for threadID := 0; threadID < w.threads; threadID++ {
		go func(threadID int) {
			defer wg.Done()
			w.mineThread(ctx, template, threadID, found, cancel)
		}(threadID)
	}
	wg.Wait()

	select {
	case block := <-found:
		return block, nil
	default:
		return database.Block{}, ctx.Err()
	}
}

// mineThread owns a disjoint slice of the search space: its own copy of
// the candidate carrying a distinct extranonce, swept one header nonce
// at a time with a thread local scratchpad. The extranonce rolls by the
// thread count if the nonce space is ever exhausted.
func (w *Worker) mineThread(ctx context.Context, template state.BlockTemplate, threadID int, found chan<- database.Block, cancel context.CancelFunc) {
	template = cloneTemplate(template)

	extraNonce := uint64(threadID)
	template.SetExtraNonce(extraNonce)

	hasher := equihash.NewHasher()
	bits := template.Block.Header.Bits

	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		template.Block.Header.Nonce = nonce
		if hasher.Verify(template.Block.Header.Encode(), bits) {
			select {
			case found <- template.Block:
				cancel()
			default:
			}
			return
		}

		nonce++
		if nonce == 0 {
			extraNonce += uint64(w.threads)
			template.SetExtraNonce(extraNonce)
		}
	}
}

// cloneTemplate copies the pieces of the template a mining thread
// mutates: the header by value and the coinbase payload that carries the
// extranonce.
func cloneTemplate(bt state.BlockTemplate) state.BlockTemplate {
	txs := make([]database.Tx, len(bt.Block.Txs))
	copy(txs, bt.Block.Txs)

	coinbase := txs[0]
	inputs := make([]database.TxInput, len(coinbase.Inputs))
	copy(inputs, coinbase.Inputs)

	payload := make([]byte, len(inputs[0].PubKey))
	copy(payload, inputs[0].PubKey)
	inputs[0].PubKey = payload

	coinbase.Inputs = inputs
	txs[0] = coinbase
	bt.Block.Txs = txs

	return bt
}
