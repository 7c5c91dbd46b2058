package scenesync

import (
	"fmt"
	"slices"
)

const (
	CommandTypeCreateShape     = "createShape"
	CommandTypeDeleteShapes    = "deleteShapes"
	CommandTypeMoveShapes      = "moveShapes"
	CommandTypeMoveVertex      = "moveVertex"
	CommandTypePatchProperties = "patchProperties"
	CommandTypeReorderShape    = "reorderShape"
	CommandTypePanViewport     = "panViewport"
)

func errShapeNotFound(shapeId Id) error {
	return fmt.Errorf("shape %s does not exist", shapeId)
}

// CreateShapeCommand adds one shape to the scene.
type CreateShapeCommand struct {
	commandBase
	Shape *Shape `json:"shape"`
}

func NewCreateShapeCommand(shape *Shape) *CreateShapeCommand {
	return &CreateShapeCommand{
		commandBase: newCommandBase(),
		Shape:       shape,
	}
}

func (self *CreateShapeCommand) Type() string {
	return CommandTypeCreateShape
}

func (self *CreateShapeCommand) Apply(state *DocState) error {
	if _, _, ok := state.FindShape(self.Shape.Id); ok {
		return fmt.Errorf("shape %s already exists", self.Shape.Id)
	}
	state.Scene.Shapes = append(state.Scene.Shapes, self.Shape.Clone())
	return nil
}

func (self *CreateShapeCommand) Invert(state *DocState) error {
	if _, _, ok := state.RemoveShape(self.Shape.Id); !ok {
		return errShapeNotFound(self.Shape.Id)
	}
	state.RemoveSelection(self.Shape.Id)
	return nil
}

func (self *CreateShapeCommand) Metadata() *CommandMetadata {
	affected := affectedShapeIds(self.Shape.Id)
	return &CommandMetadata{
		AffectedShapeIds: affected,
		SideEffects:      mutationSideEffects(affected),
	}
}

// RemovedShape is the payload a delete captures during Apply so that
// Invert can restore the shape verbatim at its original z-order.
type RemovedShape struct {
	Shape    *Shape `json:"shape"`
	Index    int    `json:"index"`
	Selected bool   `json:"selected"`
}

// DeleteShapesCommand removes a set of shapes from the scene.
type DeleteShapesCommand struct {
	commandBase
	ShapeIds []Id `json:"shapeIds"`
	// populated by Apply
	Removed []RemovedShape `json:"removed,omitempty"`
}

func NewDeleteShapesCommand(shapeIds []Id) *DeleteShapesCommand {
	return &DeleteShapesCommand{
		commandBase: newCommandBase(),
		ShapeIds:    slices.Clone(shapeIds),
	}
}

func (self *DeleteShapesCommand) Type() string {
	return CommandTypeDeleteShapes
}

func (self *DeleteShapesCommand) Apply(state *DocState) error {
	self.Removed = []RemovedShape{}
	for _, shapeId := range self.ShapeIds {
		shape, index, ok := state.RemoveShape(shapeId)
		if !ok {
			// a mid-loop fault must not leave a partial delete with no
			// history entry to restore it
			self.Invert(state)
			self.Removed = nil
			return errShapeNotFound(shapeId)
		}
		selected := state.RemoveSelection(shapeId)
		self.Removed = append(self.Removed, RemovedShape{
			Shape:    shape.Clone(),
			Index:    index,
			Selected: selected,
		})
	}
	return nil
}

func (self *DeleteShapesCommand) Invert(state *DocState) error {
	// reinsert in reverse removal order so captured indexes stay valid
	for i := len(self.Removed) - 1; 0 <= i; i -= 1 {
		removed := self.Removed[i]
		state.InsertShapeAt(removed.Shape.Clone(), removed.Index)
		if removed.Selected {
			state.Selection = append(state.Selection, removed.Shape.Id)
		}
	}
	return nil
}

func (self *DeleteShapesCommand) Metadata() *CommandMetadata {
	affected := affectedShapeIds(self.ShapeIds...)
	return &CommandMetadata{
		AffectedShapeIds: affected,
		SideEffects:      mutationSideEffects(affected),
	}
}

// MoveShapesCommand translates a set of shapes by a delta.
// Consecutive moves of the same shape set merge into one history entry,
// which makes an in-progress drag look like a single step.
type MoveShapesCommand struct {
	commandBase
	ShapeIds []Id    `json:"shapeIds"`
	Dx       float64 `json:"dx"`
	Dy       float64 `json:"dy"`
}

func NewMoveShapesCommand(shapeIds []Id, dx float64, dy float64) *MoveShapesCommand {
	return &MoveShapesCommand{
		commandBase: newCommandBase(),
		ShapeIds:    slices.Clone(shapeIds),
		Dx:          dx,
		Dy:          dy,
	}
}

func (self *MoveShapesCommand) Type() string {
	return CommandTypeMoveShapes
}

func (self *MoveShapesCommand) translate(state *DocState, dx float64, dy float64) error {
	// resolve the whole set before mutating so a missing shape faults
	// with no partial translation
	shapes := make([]*Shape, 0, len(self.ShapeIds))
	for _, shapeId := range self.ShapeIds {
		shape, _, ok := state.FindShape(shapeId)
		if !ok {
			return errShapeNotFound(shapeId)
		}
		shapes = append(shapes, shape)
	}
	for _, shape := range shapes {
		for i := range shape.Vertices {
			shape.Vertices[i].X += dx
			shape.Vertices[i].Y += dy
		}
	}
	return nil
}

func (self *MoveShapesCommand) Apply(state *DocState) error {
	return self.translate(state, self.Dx, self.Dy)
}

func (self *MoveShapesCommand) Invert(state *DocState) error {
	return self.translate(state, -self.Dx, -self.Dy)
}

func (self *MoveShapesCommand) Merge(other Command) (Command, bool) {
	otherMove, ok := other.(*MoveShapesCommand)
	if !ok {
		return nil, false
	}
	if !sameIdSet(self.ShapeIds, otherMove.ShapeIds) {
		return nil, false
	}
	// the merged command keeps the identity of the earlier edit
	return &MoveShapesCommand{
		commandBase: self.commandBase,
		ShapeIds:    slices.Clone(self.ShapeIds),
		Dx:          self.Dx + otherMove.Dx,
		Dy:          self.Dy + otherMove.Dy,
	}, true
}

func (self *MoveShapesCommand) Metadata() *CommandMetadata {
	affected := affectedShapeIds(self.ShapeIds...)
	return &CommandMetadata{
		AffectedShapeIds: affected,
		SideEffects:      mutationSideEffects(affected),
	}
}

// MoveVertexCommand moves a single control point of a single shape.
type MoveVertexCommand struct {
	commandBase
	ShapeId     Id    `json:"shapeId"`
	VertexIndex int   `json:"vertexIndex"`
	Old         Point `json:"old"`
	New         Point `json:"new"`
}

func NewMoveVertexCommand(shapeId Id, vertexIndex int, old Point, new_ Point) *MoveVertexCommand {
	return &MoveVertexCommand{
		commandBase: newCommandBase(),
		ShapeId:     shapeId,
		VertexIndex: vertexIndex,
		Old:         old,
		New:         new_,
	}
}

func (self *MoveVertexCommand) Type() string {
	return CommandTypeMoveVertex
}

func (self *MoveVertexCommand) setVertex(state *DocState, p Point) error {
	shape, _, ok := state.FindShape(self.ShapeId)
	if !ok {
		return errShapeNotFound(self.ShapeId)
	}
	if self.VertexIndex < 0 || len(shape.Vertices) <= self.VertexIndex {
		return fmt.Errorf("shape %s has no vertex %d", self.ShapeId, self.VertexIndex)
	}
	shape.Vertices[self.VertexIndex] = p
	return nil
}

func (self *MoveVertexCommand) Apply(state *DocState) error {
	return self.setVertex(state, self.New)
}

func (self *MoveVertexCommand) Invert(state *DocState) error {
	return self.setVertex(state, self.Old)
}

func (self *MoveVertexCommand) Merge(other Command) (Command, bool) {
	otherMove, ok := other.(*MoveVertexCommand)
	if !ok {
		return nil, false
	}
	if self.ShapeId != otherMove.ShapeId || self.VertexIndex != otherMove.VertexIndex {
		return nil, false
	}
	if self.New != otherMove.Old {
		// not contiguous, something else moved the vertex in between
		return nil, false
	}
	return &MoveVertexCommand{
		commandBase: self.commandBase,
		ShapeId:     self.ShapeId,
		VertexIndex: self.VertexIndex,
		Old:         self.Old,
		New:         otherMove.New,
	}, true
}

func (self *MoveVertexCommand) Metadata() *CommandMetadata {
	affected := affectedShapeIds(self.ShapeId)
	return &CommandMetadata{
		AffectedShapeIds: affected,
		SideEffects:      mutationSideEffects(affected),
	}
}

// PropertyPatch carries the old and new property values for one shape.
// Old holds the previous value for every key in New; a key missing from
// Old means the property did not exist before the patch.
type PropertyPatch struct {
	ShapeId Id             `json:"shapeId"`
	Old     map[string]any `json:"old"`
	New     map[string]any `json:"new"`
}

// PatchPropertiesCommand updates property bags across a set of shapes.
type PatchPropertiesCommand struct {
	commandBase
	Patches []PropertyPatch `json:"patches"`
}

func NewPatchPropertiesCommand(patches []PropertyPatch) *PatchPropertiesCommand {
	return &PatchPropertiesCommand{
		commandBase: newCommandBase(),
		Patches:     patches,
	}
}

func (self *PatchPropertiesCommand) Type() string {
	return CommandTypePatchProperties
}

func (self *PatchPropertiesCommand) resolve(state *DocState) ([]*Shape, error) {
	shapes := make([]*Shape, len(self.Patches))
	for i, patch := range self.Patches {
		shape, _, ok := state.FindShape(patch.ShapeId)
		if !ok {
			return nil, errShapeNotFound(patch.ShapeId)
		}
		shapes[i] = shape
	}
	return shapes, nil
}

func (self *PatchPropertiesCommand) Apply(state *DocState) error {
	shapes, err := self.resolve(state)
	if err != nil {
		return err
	}
	for i, patch := range self.Patches {
		shape := shapes[i]
		if shape.Props == nil {
			shape.Props = map[string]any{}
		}
		for k, v := range patch.New {
			shape.Props[k] = v
		}
	}
	return nil
}

func (self *PatchPropertiesCommand) Invert(state *DocState) error {
	shapes, err := self.resolve(state)
	if err != nil {
		return err
	}
	for i, patch := range self.Patches {
		shape := shapes[i]
		for k := range patch.New {
			if oldValue, ok := patch.Old[k]; ok {
				shape.Props[k] = oldValue
			} else {
				delete(shape.Props, k)
			}
		}
	}
	return nil
}

func (self *PatchPropertiesCommand) Metadata() *CommandMetadata {
	shapeIds := []Id{}
	for _, patch := range self.Patches {
		shapeIds = append(shapeIds, patch.ShapeId)
	}
	affected := affectedShapeIds(shapeIds...)
	return &CommandMetadata{
		AffectedShapeIds: affected,
		SideEffects:      mutationSideEffects(affected),
	}
}

// ReorderShapeCommand changes a shape's z-order position.
type ReorderShapeCommand struct {
	commandBase
	ShapeId  Id  `json:"shapeId"`
	OldIndex int `json:"oldIndex"`
	NewIndex int `json:"newIndex"`
}

func NewReorderShapeCommand(shapeId Id, oldIndex int, newIndex int) *ReorderShapeCommand {
	return &ReorderShapeCommand{
		commandBase: newCommandBase(),
		ShapeId:     shapeId,
		OldIndex:    oldIndex,
		NewIndex:    newIndex,
	}
}

func (self *ReorderShapeCommand) Type() string {
	return CommandTypeReorderShape
}

func (self *ReorderShapeCommand) moveTo(state *DocState, index int) error {
	shape, _, ok := state.RemoveShape(self.ShapeId)
	if !ok {
		return errShapeNotFound(self.ShapeId)
	}
	if len(state.Scene.Shapes) < index {
		index = len(state.Scene.Shapes)
	}
	if index < 0 {
		index = 0
	}
	state.InsertShapeAt(shape, index)
	return nil
}

func (self *ReorderShapeCommand) Apply(state *DocState) error {
	return self.moveTo(state, self.NewIndex)
}

func (self *ReorderShapeCommand) Invert(state *DocState) error {
	return self.moveTo(state, self.OldIndex)
}

func (self *ReorderShapeCommand) Metadata() *CommandMetadata {
	affected := affectedShapeIds(self.ShapeId)
	return &CommandMetadata{
		AffectedShapeIds: affected,
		SideEffects:      mutationSideEffects(affected),
	}
}

// PanViewportCommand moves the camera. The viewport is local to one
// context and is never replicated.
type PanViewportCommand struct {
	commandBase
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

func NewPanViewportCommand(dx float64, dy float64) *PanViewportCommand {
	return &PanViewportCommand{
		commandBase: newCommandBase(),
		Dx:          dx,
		Dy:          dy,
	}
}

func (self *PanViewportCommand) Type() string {
	return CommandTypePanViewport
}

func (self *PanViewportCommand) Apply(state *DocState) error {
	state.Viewport.X += self.Dx
	state.Viewport.Y += self.Dy
	return nil
}

func (self *PanViewportCommand) Invert(state *DocState) error {
	state.Viewport.X -= self.Dx
	state.Viewport.Y -= self.Dy
	return nil
}

func (self *PanViewportCommand) Merge(other Command) (Command, bool) {
	otherPan, ok := other.(*PanViewportCommand)
	if !ok {
		return nil, false
	}
	return &PanViewportCommand{
		commandBase: self.commandBase,
		Dx:          self.Dx + otherPan.Dx,
		Dy:          self.Dy + otherPan.Dy,
	}, true
}

func (self *PanViewportCommand) Metadata() *CommandMetadata {
	return &CommandMetadata{
		AffectedShapeIds: []Id{},
		SideEffects: []SideEffect{
			{Kind: SideEffectRendering},
		},
	}
}

func sameIdSet(a []Id, b []Id) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := affectedShapeIds(a...)
	sortedB := affectedShapeIds(b...)
	return slices.Equal(sortedA, sortedB)
}
