// Package dispatch recognizes the small set of well-known (provider,
// eventId) pairs spec §4.6 names and turns their payloads into domain
// records, handing allocation payloads to the aggregate package and
// storing method records directly (the dispatcher, not a separate
// aggregator, owns the method tables per spec §4.6.2/§4.6.3). Grounded on
// other_examples/pyroscope-io-dotnetdiag's event.go dispatch-by-id style,
// adapted to this trace's provider+eventId keying rather than a single
// numeric event kind.
package dispatch

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/aggregate"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// Dispatcher holds the read-only state needed to interpret an event once
// its schema is known: the schema table built by the metadata block
// decoder, and the pointer size fixed by TraceInfo.
type Dispatcher struct {
	Schemas     map[uint32]*model.EventSchema
	PointerSize uint32

	// RetainAllocationEvents mirrors spec §3's "optional list of
	// individual allocation events" — off by default since a long trace
	// can carry millions of allocation ticks.
	RetainAllocationEvents bool

	// methodSeq counts method-load/DCEnd/jit-start events in the order
	// they're handled, giving each MethodRecord a stable tie-break key
	// (spec §9, SPEC_FULL §9) since map iteration over res.Methods has no
	// order of its own.
	methodSeq uint64
}

func New(schemas map[uint32]*model.EventSchema, pointerSize uint32) *Dispatcher {
	return &Dispatcher{Schemas: schemas, PointerSize: pointerSize}
}

func (d *Dispatcher) nextMethodSeq() uint64 {
	d.methodSeq++
	return d.methodSeq
}

// Handle processes one decoded event against res. Errors are always
// local to this one event: the caller (the event block decoder's stream)
// records them and continues with the next event.
func (d *Dispatcher) Handle(res *model.ParseResult, ev *model.DecodedEvent) error {
	res.TotalEvents++

	schema := d.Schemas[ev.MetadataID]
	if schema == nil {
		res.EventCounts[fmt.Sprintf("unknown:%d", ev.MetadataID)]++
		return nil
	}

	res.Providers[schema.Provider] = struct{}{}
	res.EventCounts[fmt.Sprintf("%s:%d", schema.Provider, schema.EventID)]++

	switch {
	case schema.Provider == model.ProviderCLR && schema.EventID == model.EventGCAllocTick:
		return d.handleAllocationTick(res, ev)
	case schema.Provider == model.ProviderCLR && schema.EventID == model.EventMethodLoadVerbose:
		return d.handleMethodLoad(res, ev)
	case schema.Provider == model.ProviderCLRRundown && schema.EventID == model.EventMethodDCEndVerbose:
		return d.handleMethodLoad(res, ev)
	case schema.Provider == model.ProviderCLR && schema.EventID == model.EventMethodJitStart:
		return d.handleMethodJitStart(res, ev)
	case schema.Provider == model.ProviderSampleProf:
		res.CPUSamplesByStack[ev.StackID]++
		return nil
	}
	return nil
}

func (d *Dispatcher) handleAllocationTick(res *model.ParseResult, ev *model.DecodedEvent) error {
	a, err := parseAllocationTick(ev.Payload, d.PointerSize)
	if err != nil {
		return err
	}
	res.TotalAllocEvents++
	aggregate.AddAllocation(res, a.TypeName, a.Size, ev.Timestamp, ev.StackID, d.RetainAllocationEvents)
	return nil
}

func (d *Dispatcher) handleMethodLoad(res *model.ParseResult, ev *model.DecodedEvent) error {
	m, err := parseMethodLoad(ev.Payload)
	if err != nil {
		return err
	}
	m.Sequence = d.nextMethodSeq()
	res.Methods[m.MethodID] = m
	return nil
}

func (d *Dispatcher) handleMethodJitStart(res *model.ParseResult, ev *model.DecodedEvent) error {
	m, err := parseMethodJitStart(ev.Payload)
	if err != nil {
		return err
	}
	if _, known := res.Methods[m.MethodID]; known {
		return nil // method-load/DCEnd carries strictly more information
	}
	m.Sequence = d.nextMethodSeq()
	res.Methods[m.MethodID] = m
	return nil
}
