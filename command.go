package scenesync

import (
	"bytes"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// side-effect tags are advisory labels consumed by external collaborators
// (cache, painter, persistence, sync); they never affect state correctness
type SideEffectKind string

const (
	SideEffectCacheInvalidation SideEffectKind = "cacheInvalidation"
	SideEffectRendering         SideEffectKind = "rendering"
	SideEffectPersistence       SideEffectKind = "persistence"
	SideEffectSync              SideEffectKind = "sync"
)

type SideEffect struct {
	Kind SideEffectKind `json:"kind"`
	// optional, set for targeted cache invalidation
	TargetShapeId *Id `json:"targetShapeId,omitempty"`
}

type CommandMetadata struct {
	AffectedShapeIds []Id
	SideEffects      []SideEffect
}

// Command is an atomic, identified, reversible document mutation.
// The set of variants is closed; every variant is registered with the
// command registry before any cross-context traffic is processed.
//
// Invariant: for every non-signal variant, Invert after Apply restores
// every document-visible field the command could affect. Apply must
// capture whatever it discards (e.g. a delete captures the removed
// shape) so Invert can restore it verbatim.
type Command interface {
	Id() Id
	// creation time in unix milliseconds
	Timestamp() int64
	Type() string
	Apply(state *DocState) error
	Invert(state *DocState) error
	// Merge returns a combined command when other can coalesce with this
	// one (e.g. two consecutive pans), or false when not mergeable.
	Merge(other Command) (Command, bool)
	Metadata() *CommandMetadata

	// re-assert identity carried by a broadcast envelope
	forceId(id Id)
	isCommand()
}

type commandBase struct {
	CommandId   Id    `json:"id"`
	TimestampMs int64 `json:"timestampMs"`
}

func newCommandBase() commandBase {
	return commandBase{
		CommandId:   NewId(),
		TimestampMs: time.Now().UnixMilli(),
	}
}

func (self *commandBase) Id() Id {
	return self.CommandId
}

func (self *commandBase) Timestamp() int64 {
	return self.TimestampMs
}

func (self *commandBase) Merge(other Command) (Command, bool) {
	return nil, false
}

func (self *commandBase) forceId(id Id) {
	self.CommandId = id
}

func (self *commandBase) isCommand() {
}

// dedupe and order a set of affected shape ids
func affectedShapeIds(shapeIds ...Id) []Id {
	idSet := mapset.NewThreadUnsafeSet[Id](shapeIds...)
	out := idSet.ToSlice()
	slices.SortFunc(out, func(a Id, b Id) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

func mutationSideEffects(shapeIds []Id) []SideEffect {
	sideEffects := []SideEffect{}
	for i := range shapeIds {
		sideEffects = append(sideEffects, SideEffect{
			Kind:          SideEffectCacheInvalidation,
			TargetShapeId: &shapeIds[i],
		})
	}
	sideEffects = append(
		sideEffects,
		SideEffect{Kind: SideEffectRendering},
		SideEffect{Kind: SideEffectPersistence},
		SideEffect{Kind: SideEffectSync},
	)
	return sideEffects
}
