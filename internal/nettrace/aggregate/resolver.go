package aggregate

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/austenc/nettrace/internal/nettrace/model"
)

// resolverCacheSize bounds the LRU used to memoize address resolutions
// across a flame-graph build that revisits the same handful of hot
// addresses across many stacks (SPEC_FULL §4.12).
const resolverCacheSize = 8192

// backwardScanCap bounds how far Resolver.find walks backward from the
// binary-search position; every lookup examines up to this many earlier
// intervals looking for an earlier-starting overlapping match (spec §9).
const backwardScanCap = 1000

// Resolver answers address-to-method-name queries via sorted-interval
// binary search (spec §4.9). It is built once, after every method-load
// event has been folded into ParseResult.Methods, and is read-only for
// the remainder of the post-pass.
type Resolver struct {
	methods []*model.MethodRecord
	cache   *lru.Cache[uint64, string]
}

// NewResolver sorts a snapshot of res.Methods by start address, breaking
// ties on Sequence — the load order the dispatcher assigned each record
// (methods with no known size never match anything, since spec's interval
// is [start, start+size)) — and stores it back on res.MethodsByAddr for
// callers that want the raw index. Sorting by (StartAddress, Sequence)
// rather than StartAddress alone matters because res.Methods is a map:
// without Sequence there is nothing recording which of two same-address
// records the file actually loaded first, and the result of Resolve would
// depend on Go's randomized map iteration order.
func NewResolver(res *model.ParseResult) *Resolver {
	methods := make([]*model.MethodRecord, 0, len(res.Methods))
	for _, m := range res.Methods {
		if m.Size > 0 {
			methods = append(methods, m)
		}
	}
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].StartAddress != methods[j].StartAddress {
			return methods[i].StartAddress < methods[j].StartAddress
		}
		return methods[i].Sequence < methods[j].Sequence
	})
	res.MethodsByAddr = methods

	cache, _ := lru.New[uint64, string](resolverCacheSize)
	return &Resolver{methods: methods, cache: cache}
}

// ResolveName returns the resolved method's FullName, or the address
// formatted as hex when no interval contains it (spec §4.9).
func (r *Resolver) ResolveName(addr uint64) string {
	if v, ok := r.cache.Get(addr); ok {
		return v
	}
	name := formatHex(addr)
	if m := r.find(addr); m != nil {
		name = m.FullName()
	}
	r.cache.Add(addr, name)
	return name
}

// find returns the earliest-starting interval containing addr, per the
// decided reading of spec §9's overlap open question (SPEC_FULL §9).
func (r *Resolver) find(addr uint64) *model.MethodRecord {
	idx := sort.Search(len(r.methods), func(i int) bool {
		return r.methods[i].StartAddress > addr
	})

	var best *model.MethodRecord
	for i, steps := idx-1, 0; i >= 0 && steps < backwardScanCap; i, steps = i-1, steps+1 {
		m := r.methods[i]
		end := m.StartAddress + uint64(m.Size)
		if addr >= m.StartAddress && addr < end {
			best = m // keep walking backward: a smaller index is an earlier-starting match
		}
	}
	return best
}

func formatHex(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}
