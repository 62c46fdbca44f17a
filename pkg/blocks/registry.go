package blocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/travigo/assigner/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// Registry holds the schedule blocks for the service days currently loaded
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]*ctdf.Block
}

func NewRegistry() *Registry {
	return &Registry{
		blocks: map[string]*ctdf.Block{},
	}
}

// Replace swaps the full set of blocks, for use after a schedule reload
func (r *Registry) Replace(blocks []*ctdf.Block) {
	blockMap := make(map[string]*ctdf.Block, len(blocks))
	for _, block := range blocks {
		blockMap[block.PrimaryIdentifier] = block
	}

	r.mu.Lock()
	r.blocks = blockMap
	r.mu.Unlock()
}

func (r *Registry) Add(block *ctdf.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocks[block.PrimaryIdentifier] = block
}

func (r *Registry) Get(blockRef string) *ctdf.Block {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.blocks[blockRef]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.blocks)
}

// GetCurrentlyActiveBlocks returns the blocks whose service window covers t, ordered by id
func (r *Registry) GetCurrentlyActiveBlocks(ctx context.Context, t time.Time) ([]*ctdf.Block, error) {
	r.mu.RLock()
	var activeBlocks []*ctdf.Block
	for _, block := range r.blocks {
		if block.IsActive(t) {
			activeBlocks = append(activeBlocks, block)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(activeBlocks, func(a, b *ctdf.Block) int {
		return strings.Compare(a.PrimaryIdentifier, b.PrimaryIdentifier)
	})

	return activeBlocks, nil
}
