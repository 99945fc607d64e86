package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austenc/nettrace/internal/nettrace/model"
)

func newResultWithStack() *model.ParseResult {
	res := model.NewParseResult()
	res.Methods[1] = &model.MethodRecord{MethodID: 1, StartAddress: 0x1000, Size: 0x100, Namespace: "NS", Name: "Leaf", Signature: "()V"}
	res.Stacks[1] = &model.StackRecord{StackID: 1, Addresses: []uint64{0x1050, 0x9999}}
	return res
}

func TestToPprof_CPUModeBuildsOneSamplePerStackWithResolvedAndHexFrames(t *testing.T) {
	res := newResultWithStack()
	res.CPUSamplesByStack[1] = 5

	prof, err := ToPprof(res, "samples", "count")
	require.NoError(t, err)

	require.Len(t, prof.SampleType, 1)
	assert.Equal(t, "samples", prof.SampleType[0].Type)

	require.Len(t, prof.Sample, 1)
	sample := prof.Sample[0]
	require.Equal(t, []int64{5}, sample.Value)
	require.Len(t, sample.Location, 2)
	assert.Equal(t, "NS.Leaf()V", sample.Location[0].Line[0].Function.Name)
	assert.Equal(t, "0x9999", sample.Location[1].Line[0].Function.Name)
}

func TestToPprof_CPUModeSkipsStacksWithNoSamplesOrNoStackRecord(t *testing.T) {
	res := newResultWithStack()
	res.CPUSamplesByStack[1] = 0   // zero count: excluded
	res.CPUSamplesByStack[404] = 3 // no matching stack record: excluded

	prof, err := ToPprof(res, "samples", "count")
	require.NoError(t, err)
	assert.Empty(t, prof.Sample)
}

func TestToPprof_AllocModeBuildsTwoValueSamplesFromAllocationSamples(t *testing.T) {
	res := newResultWithStack()
	res.AllocationSamples[1] = &model.AllocationSamples{
		StackID:   1,
		Count:     3,
		TotalSize: 300,
		ByType:    map[string]*model.TypeSizeCount{"Widget": {Count: 3, Size: 300}},
	}

	prof, err := ToPprof(res, AllocSampleType, "count")
	require.NoError(t, err)

	require.Len(t, prof.SampleType, 2)
	assert.Equal(t, "alloc_objects", prof.SampleType[0].Type)
	assert.Equal(t, "alloc_space", prof.SampleType[1].Type)
	assert.Equal(t, "bytes", prof.SampleType[1].Unit)

	require.Len(t, prof.Sample, 1)
	assert.Equal(t, []int64{3, 300}, prof.Sample[0].Value)
}

func TestToPprof_AllocModeSkipsEmptyStacks(t *testing.T) {
	res := newResultWithStack()
	res.AllocationSamples[1] = &model.AllocationSamples{StackID: 1, Count: 0, TotalSize: 0}

	prof, err := ToPprof(res, AllocSampleType, "count")
	require.NoError(t, err)
	assert.Empty(t, prof.Sample)
}
