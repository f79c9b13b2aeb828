package scheduler

import "context"

// CallbackHandler is the contract the Watcher dispatches on each new
// block.
type CallbackHandler interface {
	// Determines if the callback should trigger for the current chain state
	ShouldTrigger(*ChainState) bool
	// Executes the callback logic and returns an error if it fails
	Execute(context.Context) error
	// Returns the name of the callback, which may be inferred from the function name
	GetName() string
}

// BlockCallback triggers every N blocks.
// WARN: when block updates stall and then jump by several multiples of
// the interval, the callback fires once for the jump, not once per
// missed interval.
type BlockCallback struct {
	LastTriggerAtBlock int
	// interval is the number of blocks between triggers
	interval  int
	executeFn func(context.Context) error
}

// NewBlockCallback creates a callback that triggers every interval blocks.
func NewBlockCallback(interval int, execute func(context.Context) error) *BlockCallback {
	return &BlockCallback{
		LastTriggerAtBlock: -1,
		interval:           interval,
		executeFn:          execute,
	}
}

// ShouldTrigger checks if the callback is due at the state's block.
func (bc *BlockCallback) ShouldTrigger(state *ChainState) bool {
	currentBlock := state.GetBlock()

	// Before the first trigger, fire only on interval boundaries.
	if bc.LastTriggerAtBlock <= 0 {
		return currentBlock%bc.interval == 0
	}

	blocksSinceLastTrigger := currentBlock - bc.LastTriggerAtBlock
	return blocksSinceLastTrigger >= bc.interval
}

// Execute runs the callback. The Watcher advances LastTriggerAtBlock
// only on success, so failed callbacks retry on the next block.
func (bc *BlockCallback) Execute(ctx context.Context) error {
	return bc.executeFn(ctx)
}

// GetName returns the callback name.
func (bc *BlockCallback) GetName() string {
	return InferNameFromFunc(bc.executeFn)
}
