package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tensorplex-labs/kami-client/pkg/kami"
)

// fakeChain serves blocks from a fixed sequence, or monotonically
// increasing ones when no sequence is given.
type fakeChain struct {
	mu              sync.Mutex
	blocks          []int
	calls           int
	blockErr        error // returned once, then cleared
	metagraph       kami.SubnetMetagraph
	metagraphNetuid int
	metagraphCalls  int
}

func (f *fakeChain) GetCurrentBlock(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blockErr != nil {
		err := f.blockErr
		f.blockErr = nil
		return 0, err
	}
	f.calls++
	if len(f.blocks) == 0 {
		return f.calls, nil
	}
	if f.calls > len(f.blocks) {
		return f.blocks[len(f.blocks)-1], nil
	}
	return f.blocks[f.calls-1], nil
}

func (f *fakeChain) GetMetagraph(ctx context.Context, netuid int) (kami.SubnetMetagraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metagraphCalls++
	f.metagraphNetuid = netuid
	return f.metagraph, nil
}

func TestWatcherDispatchesOnInterval(t *testing.T) {
	w := NewWatcher(&fakeChain{}, 98)

	var runs int
	cb := NewBlockCallback(3, func(ctx context.Context) error {
		runs++
		return nil
	})
	w.RegisterCallback(cb)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		w.poll(ctx)
	}

	// Blocks 1..7: first trigger at 3, then 6.
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
	if cb.LastTriggerAtBlock != 6 {
		t.Errorf("expected last trigger at block 6, got %d", cb.LastTriggerAtBlock)
	}
}

func TestWatcherRetriesFailedCallback(t *testing.T) {
	w := NewWatcher(&fakeChain{}, 98)

	var attempts int
	cb := NewBlockCallback(2, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	w.RegisterCallback(cb)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		w.poll(ctx)
	}

	// Fails at block 2, so LastTriggerAtBlock stays unset and the next
	// boundary (block 4) retries.
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if cb.LastTriggerAtBlock != 4 {
		t.Errorf("expected last trigger at block 4, got %d", cb.LastTriggerAtBlock)
	}
}

func TestWatcherIgnoresStaleBlocks(t *testing.T) {
	w := NewWatcher(&fakeChain{blocks: []int{5, 5, 5}}, 98)

	var runs int
	w.RegisterCallback(NewBlockCallback(1, func(ctx context.Context) error {
		runs++
		return nil
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		w.poll(ctx)
	}

	if runs != 1 {
		t.Errorf("expected a single run for repeated block 5, got %d", runs)
	}
	if got := w.State().GetBlock(); got != 5 {
		t.Errorf("expected state at block 5, got %d", got)
	}
}

func TestWatcherPollErrorKeepsState(t *testing.T) {
	fake := &fakeChain{blockErr: errors.New("kami down")}
	w := NewWatcher(fake, 98)

	ctx := context.Background()
	w.poll(ctx)
	if got := w.State().GetBlock(); got != 0 {
		t.Errorf("expected block unchanged after poll error, got %d", got)
	}

	w.poll(ctx)
	if got := w.State().GetBlock(); got != 1 {
		t.Errorf("expected block 1 after recovery, got %d", got)
	}
}

func TestMetagraphSyncUpdatesState(t *testing.T) {
	fake := &fakeChain{metagraph: kami.SubnetMetagraph{Netuid: 98, NumUids: 2}}
	w := NewWatcher(fake, 98)
	w.RegisterMetagraphSync()

	if err := w.MetagraphSync(context.Background()); err != nil {
		t.Fatalf("metagraph sync: %v", err)
	}

	if fake.metagraphNetuid != 98 {
		t.Errorf("expected sync for netuid 98, got %d", fake.metagraphNetuid)
	}
	if got := w.State().GetMetagraph(); got.NumUids != 2 {
		t.Errorf("expected metagraph in state, got %+v", got)
	}
}

func TestWatcherStartStop(t *testing.T) {
	fake := &fakeChain{}
	w := NewWatcher(fake, 98)
	w.BlockTime = time.Millisecond

	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Stop()

	if got := w.State().GetBlock(); got == 0 {
		t.Error("expected watcher to observe at least one block")
	}

	// Stop on a watcher that never started is a no-op.
	NewWatcher(fake, 98).Stop()
}
