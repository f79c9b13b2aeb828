// Package scheduler runs block-driven callbacks against a subnet. A
// Watcher polls the chain for new blocks and keeps a shared ChainState
// current; registered callbacks fire when their block intervals come
// due.
package scheduler

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/kami-client/pkg/kami"
)

// ChainState holds the latest observed block, metagraph, and netuid.
// All access goes through the accessors, which lock.
type ChainState struct {
	mu        sync.RWMutex
	netuid    int
	block     int
	metagraph kami.SubnetMetagraph
}

func NewChainState(netuid int) *ChainState {
	return &ChainState{netuid: netuid}
}

func (cs *ChainState) GetBlock() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.block
}

func (cs *ChainState) GetMetagraph() kami.SubnetMetagraph {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.metagraph
}

func (cs *ChainState) GetNetuid() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.netuid
}

// UpdateBlock advances the block number. Blocks never go backwards, so
// a non-increasing update is ignored with a warning.
func (cs *ChainState) UpdateBlock(block int) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if block <= cs.block {
		log.Warn().
			Int("current_block", cs.block).
			Int("new_block", block).
			Msg("new block is <= current block, not updating state")
		return false
	}
	cs.block = block
	return true
}

func (cs *ChainState) SetMetagraph(metagraph kami.SubnetMetagraph) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.metagraph = metagraph
}
