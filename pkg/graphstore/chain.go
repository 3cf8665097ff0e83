package graphstore

import (
	"fmt"

	"github.com/happyrust/plantgraph/pkg/element"
)

// maxChainDepth bounds ownership chains. Real plant hierarchies are 10-15
// levels deep; anything past this is treated as corrupt data.
const maxChainDepth = 64

// walkAncestors resolves the ownership chain of ref in root-first order using
// the supplied owner lookup. The walk is iterative, detects revisits and
// fails fast with ErrCyclicOwnership instead of looping forever.
func walkAncestors(ref element.RefNo, owner func(element.RefNo) (element.RefNo, error)) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}

	seen := map[element.RefNo]struct{}{}
	chain := make([]element.RefNo, 0, 8)

	cur := ref
	for {
		if _, dup := seen[cur]; dup {
			return nil, fmt.Errorf("%w: revisited %s walking from %s", ErrCyclicOwnership, cur, ref)
		}
		if len(chain) >= maxChainDepth {
			return nil, fmt.Errorf("%w: chain from %s exceeds %d levels", ErrCyclicOwnership, ref, maxChainDepth)
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)

		own, err := owner(cur)
		if err != nil {
			return nil, err
		}
		if own.IsNil() || own == cur {
			break // self-owned root terminates the chain
		}
		cur = own
	}

	// Reverse leaf-first into root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
