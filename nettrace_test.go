package nettrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austenc/nettrace/internal/nettrace/model"
	"github.com/austenc/nettrace/internal/nettrace/testtrace"
)

func u32p(v uint32) *uint32 { return &v }
func i64p(v int64) *int64  { return &v }
func u64p(v uint64) *uint64 { return &v }

// Scenario 1: minimal valid file.
func TestParse_MinimalValidFile(t *testing.T) {
	b := testtrace.New()
	b.WriteTrace(testtrace.EncodeTracePayload(2025, 11, 29, 16, 26, 8, 0, 0, 10_000_000, 8, 42, 8, 1))

	res, err := Parse(b.Bytes())
	require.NoError(t, err)
	require.NotNil(t, res.Trace)

	assert.Equal(t, uint32(42), res.Trace.ProcessID)
	assert.Equal(t, uint32(8), res.Trace.PointerSize)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Schemas)
	assert.Empty(t, res.Stacks)
	assert.Empty(t, res.Methods)
	assert.Empty(t, res.Allocations)
}

// Scenario 2: one metadata, one event, one stack.
func TestParse_MetadataEventAndStack(t *testing.T) {
	b := testtrace.New()
	b.WriteTrace(testtrace.EncodeTracePayload(2025, 11, 29, 16, 26, 8, 0, 0, 10_000_000, 8, 42, 8, 1))

	schema := testtrace.EncodeSchemaDescriptor(7, "Microsoft-Windows-DotNETRuntime", 10, "GCAllocationTick", 0, 1, 0, nil)
	metaEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		ExplicitSize:   true,
		TimestampDelta: 0,
		Payload:        schema,
	})
	b.WriteBlock("MetadataBlock", testtrace.BuildEventStreamContent(metaEvent), true, 0)

	b.WriteBlock("StackBlock", testtrace.BuildStackBlockContent(1, [][]uint64{{0x1000, 0x2000}}, 8), true, 0)

	allocPayload := allocTickPayload(64, 0, 0, 128, 8, "MyType")
	ev := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID:      u32p(7),
		CaptureThreadID: i64p(1),
		ProcessorNumber: 0,
		StackID:         u64p(1),
		ExplicitSize:    true,
		TimestampDelta:  5,
		Payload:         allocPayload,
	})
	b.WriteBlock("EventBlock", testtrace.BuildEventStreamContent(ev), true, 0)

	res, err := Parse(b.Bytes())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)

	require.Contains(t, res.Allocations, "MyType")
	assert.Equal(t, uint64(1), res.Allocations["MyType"].Count)
	assert.Equal(t, uint64(128), res.Allocations["MyType"].TotalSize)

	require.Contains(t, res.AllocationSamples, uint64(1))
	require.Contains(t, res.AllocationSamples[1].ByType, "MyType")
	assert.Equal(t, uint64(1), res.AllocationSamples[1].ByType["MyType"].Count)
	assert.Equal(t, uint64(128), res.AllocationSamples[1].ByType["MyType"].Size)
}

// Scenario 4: carry-over compression.
func TestParse_CarryOverCompression(t *testing.T) {
	b := testtrace.New()
	b.WriteTrace(testtrace.EncodeTracePayload(2025, 11, 29, 16, 26, 8, 0, 0, 10_000_000, 8, 1, 1, 1))

	schema := testtrace.EncodeSchemaDescriptor(9, "Microsoft-DotNETCore-SampleProfiler", 0, "Sample", 0, 1, 0, nil)
	metaEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: schema})
	b.WriteBlock("MetadataBlock", testtrace.BuildEventStreamContent(metaEvent), true, 0)

	first := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID:      u32p(9),
		CaptureThreadID: i64p(42),
		ProcessorNumber: 2,
		ThreadID:        i64p(42),
		StackID:         u64p(5),
		ExplicitSize:    true,
		TimestampDelta:  100,
		Payload:         []byte{},
	})
	second := testtrace.EncodeCompressedEvent(testtrace.EventSpec{TimestampDelta: 50, Payload: nil})
	b.WriteBlock("EventBlock", testtrace.BuildEventStreamContent(first, second), true, 0)

	res, err := Parse(b.Bytes())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, uint64(2), res.TotalEvents)
	// Both events resolve to stack id 5 under the sample profiler provider.
	assert.Equal(t, uint64(2), res.CPUSamplesByStack[5])
}

// Scenario 3: address resolution mixes a resolved and an unresolved frame
// in the same CPU flame tree.
func TestParse_MethodResolutionInCPUFlame(t *testing.T) {
	b := testtrace.New()
	b.WriteTrace(testtrace.EncodeTracePayload(2025, 11, 29, 16, 26, 8, 0, 0, 10_000_000, 8, 1, 1, 1))

	methodSchema := testtrace.EncodeSchemaDescriptor(1, model.ProviderCLR, model.EventMethodLoadVerbose, "MethodLoadVerbose", 0, 1, 0, nil)
	sampleSchema := testtrace.EncodeSchemaDescriptor(2, model.ProviderSampleProf, 0, "Sample", 0, 1, 0, nil)
	metaEvent1 := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: methodSchema})
	metaEvent2 := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: sampleSchema})
	b.WriteBlock("MetadataBlock", testtrace.BuildEventStreamContent(metaEvent1, metaEvent2), true, 0)

	// Top of stack (0x1000) resolves to a known method; the caller frame
	// (0x2000) has no matching interval and stays hex-formatted.
	b.WriteBlock("StackBlock", testtrace.BuildStackBlockContent(1, [][]uint64{{0x1000, 0x2000}}, 8), true, 0)

	methodPayload := methodLoadPayload(1, 1, 0x1000, 0x100, 0, 0, "NS", "Foo", "()V")
	methodEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID: u32p(1), CaptureThreadID: i64p(1), ExplicitSize: true, TimestampDelta: 1, Payload: methodPayload,
	})
	b.WriteBlock("EventBlock", testtrace.BuildEventStreamContent(methodEvent), true, 0)

	sampleEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID: u32p(2), CaptureThreadID: i64p(1), StackID: u64p(1), ExplicitSize: true, TimestampDelta: 1,
	})
	b.WriteBlock("EventBlock", testtrace.BuildEventStreamContent(sampleEvent), false, 3) // Trace 0, MetadataBlock 1, StackBlock 2, EventBlock 3

	res, err := Parse(b.Bytes())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	require.Contains(t, res.Methods, uint64(1))

	var sawResolved, sawUnresolved bool
	for _, n := range res.CPUFlame {
		if n.Name == "NS.Foo()V" {
			sawResolved = true
		}
		if n.Name == "0x2000" {
			sawUnresolved = true
		}
	}
	assert.True(t, sawResolved, "expected a resolved method frame in the CPU flame")
	assert.True(t, sawUnresolved, "expected an unresolved hex-formatted frame in the CPU flame")
}

// Scenario 5: truncated block recovery.
func TestParse_TruncatedBlockRecovers(t *testing.T) {
	b := testtrace.New()
	b.WriteTrace(testtrace.EncodeTracePayload(2025, 11, 29, 16, 26, 8, 0, 0, 10_000_000, 8, 1, 1, 1))

	schema := testtrace.EncodeSchemaDescriptor(7, "Microsoft-Windows-DotNETRuntime", 10, "GCAllocationTick", 0, 1, 0, nil)
	metaEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: schema})
	b.WriteBlock("MetadataBlock", testtrace.BuildEventStreamContent(metaEvent), true, 0)

	raw := b.Bytes()
	// Append a hand-rolled EventBlock object whose declared size overruns
	// the actual remaining content.
	content := testtrace.BuildEventStreamContent()
	// Manually frame an EventBlock object with an inflated size field.
	raw = append(raw, 5, 1, 1, 0, 0, 0, 1, 0, 0, 0)
	name := []byte("EventBlock")
	nameLen := int32(len(name))
	raw = append(raw, byte(nameLen), byte(nameLen>>8), byte(nameLen>>16), byte(nameLen>>24))
	raw = append(raw, name...)
	big := int32(len(content) + 1000)
	raw = append(raw, byte(big), byte(big>>8), byte(big>>16), byte(big>>24))
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}
	raw = append(raw, content...)
	raw = append(raw, 2)

	res, err := Parse(raw)
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors)
	found := false
	for _, e := range res.Errors {
		if containsEventBlock(e) {
			found = true
		}
	}
	assert.True(t, found, "expected an EventBlock error, got %v", res.Errors)
	require.Contains(t, res.Schemas, uint32(7))
}

func containsEventBlock(s string) bool {
	for i := 0; i+len("EventBlock") <= len(s); i++ {
		if s[i:i+len("EventBlock")] == "EventBlock" {
			return true
		}
	}
	return false
}

// Scenario 6: unknown type tolerance.
func TestParse_UnknownTypeTolerance(t *testing.T) {
	b := testtrace.New()
	b.WriteTrace(testtrace.EncodeTracePayload(2025, 11, 29, 16, 26, 8, 0, 0, 10_000_000, 8, 1, 1, 1))

	schema := testtrace.EncodeSchemaDescriptor(9, "Microsoft-DotNETCore-SampleProfiler", 0, "Sample", 0, 1, 0, nil)
	metaEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: schema})
	b.WriteBlock("MetadataBlock", testtrace.BuildEventStreamContent(metaEvent), true, 0)

	ev1 := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID: u32p(9), CaptureThreadID: i64p(1), StackID: u64p(1), ExplicitSize: true, TimestampDelta: 1,
	})
	b.WriteBlock("EventBlock", testtrace.BuildEventStreamContent(ev1), true, 0)

	b.WriteBlock("SomeNovelType", []byte("garbage-that-looks-like-nothing"), true, 0)

	ev2 := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID: u32p(9), CaptureThreadID: i64p(1), StackID: u64p(2), ExplicitSize: true, TimestampDelta: 1,
	})
	b.WriteBlock("EventBlock", testtrace.BuildEventStreamContent(ev2), false, 2)

	res, err := Parse(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.CPUSamplesByStack[1])
	assert.Equal(t, uint64(1), res.CPUSamplesByStack[2])
}

// allocTickPayload builds a GC-allocation-tick payload with all four
// additive fields present (spec §4.6.1).
func allocTickPayload(amount32, kind uint32, clrInstanceID uint16, amount64 uint64, pointerSize int, typeName string) []byte {
	buf := make([]byte, 0, 32)
	buf = appendU32(buf, amount32)
	buf = appendU32(buf, kind)
	buf = appendU16(buf, clrInstanceID)
	buf = appendU64(buf, amount64)
	for i := 0; i < pointerSize; i++ {
		buf = append(buf, 0) // typeId, skipped
	}
	buf = appendUTF16(buf, typeName)
	return buf
}

// methodLoadPayload builds a MethodLoadVerbose payload (spec §4.6.2).
func methodLoadPayload(methodID, moduleID, startAddress uint64, size, token, flags uint32, namespace, name, signature string) []byte {
	buf := make([]byte, 0, 64)
	buf = appendU64(buf, methodID)
	buf = appendU64(buf, moduleID)
	buf = appendU64(buf, startAddress)
	buf = appendU32(buf, size)
	buf = appendU32(buf, token)
	buf = appendU32(buf, flags)
	buf = appendUTF16(buf, namespace)
	buf = appendUTF16(buf, name)
	buf = appendUTF16(buf, signature)
	return buf
}

func appendU16(b []byte, v uint16) []byte { return append(b, byte(v), byte(v>>8)) }
func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func appendU64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}
func appendUTF16(b []byte, s string) []byte {
	for _, r := range s {
		b = appendU16(b, uint16(r))
	}
	return appendU16(b, 0)
}
