package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/kami-client/pkg/kami"
)

const (
	// IntervalMetagraphSync is the default metagraph refresh cadence in
	// blocks.
	IntervalMetagraphSync = 10
	// DefaultBlockTime matches the subtensor block production rate.
	DefaultBlockTime = 12 * time.Second
)

// BlockSource yields the latest chain block.
type BlockSource interface {
	GetCurrentBlock(ctx context.Context) (int, error)
}

// MetagraphSource extends BlockSource with metagraph reads. *kami.Kami
// satisfies it.
type MetagraphSource interface {
	BlockSource
	GetMetagraph(ctx context.Context, netuid int) (kami.SubnetMetagraph, error)
}

// Watcher polls the chain once per block and dispatches registered
// callbacks when their intervals come due.
type Watcher struct {
	// BlockTime is the polling cadence. Defaults to DefaultBlockTime.
	BlockTime time.Duration

	source    MetagraphSource
	state     *ChainState
	callbacks []CallbackHandler
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewWatcher(source MetagraphSource, netuid int) *Watcher {
	return &Watcher{
		BlockTime: DefaultBlockTime,
		source:    source,
		state:     NewChainState(netuid),
	}
}

// State returns the shared chain state the watcher maintains.
func (w *Watcher) State() *ChainState {
	return w.state
}

// RegisterCallback adds a callback. Not safe to call once Run has
// started.
func (w *Watcher) RegisterCallback(callback CallbackHandler) {
	w.callbacks = append(w.callbacks, callback)
	log.Debug().Str("callback", callback.GetName()).Msg("Registered callback")
}

// RegisterMetagraphSync registers the periodic metagraph refresh.
func (w *Watcher) RegisterMetagraphSync() {
	w.RegisterCallback(NewBlockCallback(IntervalMetagraphSync, w.MetagraphSync))
}

// MetagraphSync fetches the subnet metagraph into the shared state.
func (w *Watcher) MetagraphSync(ctx context.Context) error {
	metagraph, err := w.source.GetMetagraph(ctx, w.state.GetNetuid())
	if err != nil {
		log.Error().Err(err).Msg("Failed to update metagraph")
		return err
	}
	w.state.SetMetagraph(metagraph)
	log.Info().Msg("Updated metagraph")
	return nil
}

// Run polls for new blocks until ctx is cancelled. Poll failures are
// logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) {
	for {
		w.poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.BlockTime):
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	prevBlock := w.state.GetBlock()
	block, err := w.source.GetCurrentBlock(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to update latest block")
		return
	}

	if !w.state.UpdateBlock(block) {
		return
	}

	log.Info().
		Int("previous_block", prevBlock).
		Int("current_block", block).
		Msg("Updated latest block")

	w.onBlockUpdate(ctx)
}

func (w *Watcher) onBlockUpdate(ctx context.Context) {
	for _, callback := range w.callbacks {
		if !callback.ShouldTrigger(w.state) {
			continue
		}

		log.Info().
			Str("callback", callback.GetName()).
			Msg("Executing callback")

		err := callback.Execute(ctx)
		if err != nil {
			log.Error().
				Err(err).
				Str("callback", callback.GetName()).
				Msg("Failed to execute callback")
		} else {
			log.Info().
				Str("callback", callback.GetName()).
				Msg("Callback executed successfully")
		}

		if blockCallback, ok := callback.(*BlockCallback); ok && err == nil {
			blockCallback.LastTriggerAtBlock = w.state.GetBlock()
		}
	}
}

// Start runs the watcher in a goroutine. Stop cancels it and waits for
// the loop to exit.
func (w *Watcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		w.Run(runCtx)
	}()
	log.Info().Int("netuid", w.state.GetNetuid()).Msg("Block watcher started")
}

// Stop halts a started watcher. Safe to call when never started.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	log.Info().Msg("Block watcher stopped")
}
