package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austenc/nettrace/internal/nettrace/model"
)

func newSampledResult() *model.ParseResult {
	res := model.NewParseResult()
	res.Methods[1] = &model.MethodRecord{MethodID: 1, StartAddress: 0x1000, Size: 0x100, Namespace: "NS", Name: "Leaf"}
	res.Methods[2] = &model.MethodRecord{MethodID: 2, StartAddress: 0x2000, Size: 0x100, Namespace: "NS", Name: "Caller"}
	res.Stacks[1] = &model.StackRecord{StackID: 1, Addresses: []uint64{0x1000, 0x2000}} // leaf first
	res.CPUSamplesByStack[1] = 7
	return res
}

func TestBuildMethodProfiles_ExclusiveOnlyOnTopOfStack(t *testing.T) {
	res := newSampledResult()
	Build(res)

	leaf := res.MethodProfiles["NS.Leaf"]
	caller := res.MethodProfiles["NS.Caller"]
	require.NotNil(t, leaf)
	require.NotNil(t, caller)

	assert.Equal(t, uint64(7), leaf.ExclusiveCount)
	assert.Equal(t, uint64(0), caller.ExclusiveCount, "only the top-of-stack frame gets exclusive credit")
	assert.Equal(t, uint64(7), leaf.InclusiveCount)
	assert.Equal(t, uint64(7), caller.InclusiveCount, "every distinct method on the stack gets inclusive credit")
	assert.GreaterOrEqual(t, leaf.InclusiveCount, leaf.ExclusiveCount)
	assert.GreaterOrEqual(t, caller.InclusiveCount, caller.ExclusiveCount)
}

func TestBuildFlame_RootIsDeepestCallerAndWeightIsConserved(t *testing.T) {
	res := newSampledResult()
	Build(res)

	// CPUFlame is the flattened [0,1]-positioned node list spec §4.10
	// describes: the tree root is depth 0, its child is depth 1, hierarchy
	// is recovered from Depth/Start/Width rather than a Children pointer.
	require.Len(t, res.CPUFlame, 2)

	var root, leaf *model.FlameNode
	for _, n := range res.CPUFlame {
		switch n.Depth {
		case 0:
			root = n
		case 1:
			leaf = n
		}
	}
	require.NotNil(t, root)
	require.NotNil(t, leaf)

	assert.Equal(t, "NS.Caller", root.Name, "the deepest caller (last stack address) must be the tree root")
	assert.Equal(t, uint64(7), root.Weight)
	assert.Equal(t, "NS.Leaf", leaf.Name)
	assert.LessOrEqual(t, leaf.Weight, root.Weight, "a child's weight must never exceed its parent's")
	assert.GreaterOrEqual(t, leaf.Start, root.Start)
	assert.LessOrEqual(t, leaf.Start+leaf.Width, root.Start+root.Width)
}

func TestBuildFlame_EmptyWhenNoSamples(t *testing.T) {
	res := model.NewParseResult()
	Build(res)
	assert.Empty(t, res.CPUFlame)
	assert.Empty(t, res.AllocFlame)
}
