package scenesync

import (
	"slices"
)

// The document state collaborator interface (the reactive container and
// painter live outside this package). Commands are the only permitted
// mutators of a DocState; see Executor.

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Viewport struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Shape struct {
	Id       Id             `json:"id"`
	Kind     string         `json:"kind"`
	Vertices []Point        `json:"vertices,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
}

func (self *Shape) Clone() *Shape {
	if self == nil {
		return nil
	}
	return &Shape{
		Id:       self.Id,
		Kind:     self.Kind,
		Vertices: slices.Clone(self.Vertices),
		Props:    cloneProps(self.Props),
	}
}

type Scene struct {
	Shapes []*Shape `json:"shapes"`
}

type DocState struct {
	Scene     Scene    `json:"scene"`
	Selection []Id     `json:"selection"`
	Viewport  Viewport `json:"viewport"`
}

func NewDocState() *DocState {
	return &DocState{
		Scene: Scene{
			Shapes: []*Shape{},
		},
		Selection: []Id{},
	}
}

func (self *DocState) FindShape(shapeId Id) (*Shape, int, bool) {
	for i, shape := range self.Scene.Shapes {
		if shape.Id == shapeId {
			return shape, i, true
		}
	}
	return nil, -1, false
}

// index may equal len(shapes), which appends
func (self *DocState) InsertShapeAt(shape *Shape, index int) {
	if index < 0 || len(self.Scene.Shapes) < index {
		index = len(self.Scene.Shapes)
	}
	self.Scene.Shapes = slices.Insert(self.Scene.Shapes, index, shape)
}

func (self *DocState) RemoveShape(shapeId Id) (*Shape, int, bool) {
	shape, i, ok := self.FindShape(shapeId)
	if !ok {
		return nil, -1, false
	}
	self.Scene.Shapes = slices.Delete(self.Scene.Shapes, i, i+1)
	return shape, i, true
}

func (self *DocState) RemoveSelection(shapeId Id) bool {
	i := slices.Index(self.Selection, shapeId)
	if i < 0 {
		return false
	}
	self.Selection = slices.Delete(self.Selection, i, i+1)
	return true
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
