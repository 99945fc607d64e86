// Package nettrace decodes .NET EventPipe ("nettrace") trace files into an
// in-memory analytical model: trace header, event schemas, call-stack
// samples, JIT method address ranges, per-type allocation aggregates, and
// the CPU/allocation profiles and flame-graph trees derived from them.
//
// Byte acquisition, UI rendering, and host integration are the caller's
// responsibility; Parse consumes a fully-buffered byte slice and returns a
// frozen result value.
package nettrace

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/block"
	"github.com/austenc/nettrace/internal/nettrace/container"
	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/dispatch"
	"github.com/austenc/nettrace/internal/nettrace/model"
	"github.com/austenc/nettrace/internal/nettrace/profile"
)

// Re-exported types, so callers never need to import the internal
// packages directly.
type (
	ParseResult           = model.ParseResult
	TraceInfo             = model.TraceInfo
	EventSchema           = model.EventSchema
	EventField            = model.EventField
	StackRecord           = model.StackRecord
	MethodRecord          = model.MethodRecord
	AllocationInfo        = model.AllocationInfo
	AllocationEvent       = model.AllocationEvent
	AllocationSamples     = model.AllocationSamples
	TypeSizeCount         = model.TypeSizeCount
	TypeStackDistribution = model.TypeStackDistribution
	MethodProfile         = model.MethodProfile
	FlameNode             = model.FlameNode
)

// defaultPointerSize is used to size stack addresses until the Trace
// object has been decoded; every real trace carries pointerSize 4 or 8,
// but stack/method events are not guaranteed to appear after it, so a
// StackBlock or allocation event seen before the Trace object falls back to
// this width rather than failing outright.
const defaultPointerSize = 8

// Parse decodes a fully-buffered trace. The only case that returns a
// non-nil error is nil/empty input; every other failure — malformed
// magic, a truncated block, an unrecognized type — is recorded in the
// returned result's Errors and does not prevent the rest of the trace
// from being decoded (spec §7).
func Parse(data []byte) (*ParseResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("nettrace: empty input")
	}

	driver, err := container.NewDriver(data)
	if err != nil {
		res := model.NewParseResult()
		res.Errors = append(res.Errors, err.Error())
		logger().WithError(err).Warn("nettrace: fatal container error")
		return res, nil
	}

	res := model.NewParseResult()
	dispatcher := dispatch.New(res.Schemas, defaultPointerSize)

	driver.Run(func(typeName string, payload *cursor.Cursor) error {
		return dispatchObject(res, dispatcher, model.BlockKind(typeName), payload)
	})

	res.Errors = append(res.Errors, driver.Errors...)
	profile.Build(res)

	logger().WithField("events", res.TotalEvents).WithField("errors", len(res.Errors)).Debug("nettrace: parse complete")
	return res, nil
}

func dispatchObject(res *ParseResult, dispatcher *dispatch.Dispatcher, kind model.BlockKind, payload *cursor.Cursor) error {
	switch kind {
	case model.BlockTrace:
		info, err := parseTraceInfo(payload)
		if err != nil {
			return err
		}
		res.Trace = info
		dispatcher.PointerSize = info.PointerSize
		return nil

	case model.BlockMetadata:
		schemas, errs := block.DecodeMetadataBlock(payload)
		for _, s := range schemas {
			res.Schemas[s.MetadataID] = s
		}
		appendErrors(res, "MetadataBlock", errs)
		return nil

	case model.BlockEvent:
		errs := block.DecodeEventBlock(payload, func(ev *model.DecodedEvent) error {
			return dispatcher.Handle(res, ev)
		})
		appendErrors(res, "EventBlock", errs)
		return nil

	case model.BlockStack:
		records, errs := block.DecodeStackBlock(payload, dispatcher.PointerSize)
		for _, r := range records {
			res.Stacks[r.StackID] = r
		}
		appendErrors(res, "StackBlock", errs)
		return nil

	case model.BlockSP:
		return nil // framed and consumed; no recognized content beyond that (spec §1 non-goal)

	default:
		return nil
	}
}

func appendErrors(res *ParseResult, component string, errs []string) {
	for _, e := range errs {
		res.Errors = append(res.Errors, component+": "+e)
	}
}

// parseTraceInfo decodes the Trace object's fixed 48-byte payload (spec
// §3, §6).
func parseTraceInfo(c *cursor.Cursor) (*model.TraceInfo, error) {
	fields := make([]int16, 8)
	for i := range fields {
		v, err := c.ReadI16()
		if err != nil {
			return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "wall-clock field"}
		}
		fields[i] = v
	}

	syncTimeQPC, err := c.ReadU64()
	if err != nil {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "sync time"}
	}
	qpcFrequency, err := c.ReadU64()
	if err != nil {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "qpc frequency"}
	}
	pointerSize, err := c.ReadU32()
	if err != nil {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "pointer size"}
	}
	processID, err := c.ReadU32()
	if err != nil {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "process id"}
	}
	processorCount, err := c.ReadU32()
	if err != nil {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "processor count"}
	}
	samplingRateHz, err := c.ReadU32()
	if err != nil {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "trace", Detail: "sampling rate"}
	}

	return &model.TraceInfo{
		Year: fields[0], Month: fields[1], /* fields[2] is day-of-week, ignored */
		Day: fields[3], Hour: fields[4], Minute: fields[5], Second: fields[6], Millisecond: fields[7],
		SyncTimeQPC:    syncTimeQPC,
		QPCFrequency:   qpcFrequency,
		PointerSize:    pointerSize,
		ProcessID:      processID,
		ProcessorCount: processorCount,
		SamplingRateHz: samplingRateHz,
	}, nil
}
