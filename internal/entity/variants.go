package entity

import (
	"math"
	"sync/atomic"
)

var idSeq atomic.Uint64

// Built-in type tags.
const (
	TypePoint     = "POINT"
	TypeLine      = "LINE"
	TypeRectangle = "RECT"
	TypePlayer    = "PLAYER"
	TypeObject    = "OBJECT"
)

const defaultColor = "red"

// Point is a single coordinate that can optionally track another entity.
type Point struct {
	Base
	X, Y      float64
	Color     string
	Invisible bool
	Follow    Positionable
}

// NewPoint builds a point of the default type.
func NewPoint(id string, x, y float64) *Point {
	return NewPointOf(TypePoint, id, x, y)
}

// NewPointOf builds a point with a custom type tag.
func NewPointOf(kind, id string, x, y float64) *Point {
	return &Point{Base: NewBase(kind, id), X: x, Y: y, Color: defaultColor}
}

// Position implements Positionable.
func (p *Point) Position() (float64, float64) {
	return p.X, p.Y
}

// Update implements Updatable.
func (p *Point) Update(float64) {
	if p.Follow != nil {
		p.X, p.Y = p.Follow.Position()
	}
}

// InitSnapshot implements Entity.
func (p *Point) InitSnapshot() Snapshot {
	snap := p.header(true)
	snap["x"] = p.X
	snap["y"] = p.Y
	snap["color"] = p.Color
	return snap
}

// Snapshot implements Entity.
func (p *Point) Snapshot() Snapshot {
	snap := p.header(false)
	snap["x"] = p.X
	snap["y"] = p.Y
	return snap
}

// Line connects two coordinates; either end may track another entity.
type Line struct {
	Base
	X, Y    float64
	XX, YY  float64
	Color   string
	FollowA Positionable
	FollowB Positionable
}

// NewLine builds a line segment.
func NewLine(id string, x, y, xx, yy float64) *Line {
	return &Line{Base: NewBase(TypeLine, id), X: x, Y: y, XX: xx, YY: yy, Color: defaultColor}
}

// Position implements Positionable using the first end point.
func (l *Line) Position() (float64, float64) {
	return l.X, l.Y
}

// Update implements Updatable.
func (l *Line) Update(float64) {
	if l.FollowA != nil {
		l.X, l.Y = l.FollowA.Position()
	}
	if l.FollowB != nil {
		l.XX, l.YY = l.FollowB.Position()
	}
}

// InitSnapshot implements Entity.
func (l *Line) InitSnapshot() Snapshot {
	snap := l.header(true)
	snap["x"] = l.X
	snap["y"] = l.Y
	snap["xx"] = l.XX
	snap["yy"] = l.YY
	snap["width"] = l.XX - l.X
	snap["height"] = l.YY - l.Y
	snap["color"] = l.Color
	return snap
}

// Snapshot implements Entity.
func (l *Line) Snapshot() Snapshot {
	snap := l.header(false)
	snap["x"] = l.X
	snap["y"] = l.Y
	snap["xx"] = l.XX
	snap["yy"] = l.YY
	return snap
}

// Rectangle is an axis-aligned box described by two corners.
type Rectangle struct {
	Line
	Invisible bool
	Fill      bool
}

// NewRectangle builds a rectangle from two corners.
func NewRectangle(id string, x, y, xx, yy float64) *Rectangle {
	line := NewLine(id, x, y, xx, yy)
	line.kind = TypeRectangle
	return &Rectangle{Line: *line}
}

// InitSnapshot implements Entity.
func (r *Rectangle) InitSnapshot() Snapshot {
	snap := r.Line.InitSnapshot()
	delete(snap, "width")
	delete(snap, "height")
	snap["invisible"] = r.Invisible
	snap["fill"] = r.Fill
	return snap
}

// Snapshot implements Entity.
func (r *Rectangle) Snapshot() Snapshot {
	snap := r.Line.Snapshot()
	snap["invisible"] = r.Invisible
	return snap
}

// Key input identifiers understood by Player.
const (
	KeyLeft  = "left"
	KeyUp    = "up"
	KeyRight = "right"
	KeyDown  = "down"
)

// DefaultPlayerSpeed is expressed in world units per second.
const DefaultPlayerSpeed = 200.0

// Player is the owner entity created for every connection. Movement keys
// toggle direction flags that Update integrates over the tick delta.
type Player struct {
	Base
	X, Y         float64
	Speed        float64
	Layer        int
	PressedLeft  bool
	PressedUp    bool
	PressedRight bool
	PressedDown  bool
}

// NewPlayer builds the owner entity for a connection. The entity id and the
// owner id are both the connection id.
func NewPlayer(connID string, x, y float64) *Player {
	p := &Player{Base: NewBase(TypePlayer, connID), X: x, Y: y, Speed: DefaultPlayerSpeed}
	p.SetOwner(connID)
	return p
}

// Position implements Positionable.
func (p *Player) Position() (float64, float64) {
	return p.X, p.Y
}

// SetKey implements KeyReceiver. It reports whether the key state changed;
// unknown inputs and repeats of the current state are ignored.
func (p *Player) SetKey(inputID string, pressed bool) bool {
	var flag *bool
	switch inputID {
	case KeyLeft:
		flag = &p.PressedLeft
	case KeyUp:
		flag = &p.PressedUp
	case KeyRight:
		flag = &p.PressedRight
	case KeyDown:
		flag = &p.PressedDown
	default:
		return false
	}
	if *flag == pressed {
		return false
	}
	*flag = pressed
	return true
}

// Update implements Updatable. The y axis grows upwards.
func (p *Player) Update(delta float64) {
	var dx, dy float64
	if p.PressedLeft {
		dx--
	}
	if p.PressedRight {
		dx++
	}
	if p.PressedUp {
		dy++
	}
	if p.PressedDown {
		dy--
	}
	if dx == 0 && dy == 0 {
		return
	}
	length := math.Hypot(dx, dy)
	step := p.Speed * delta / length
	p.X += dx * step
	p.Y += dy * step
}

// InitSnapshot implements Entity.
func (p *Player) InitSnapshot() Snapshot {
	snap := p.header(true)
	snap["x"] = p.X
	snap["y"] = p.Y
	snap["layer"] = p.Layer
	return snap
}

// Snapshot implements Entity.
func (p *Player) Snapshot() Snapshot {
	snap := p.header(false)
	snap["x"] = p.X
	snap["y"] = p.Y
	snap["layer"] = p.Layer
	return snap
}

// OwnerSnapshot implements Owned.
func (p *Player) OwnerSnapshot() Snapshot {
	if p.OwnerID() == "" {
		return nil
	}
	snap := p.header(false)
	snap["speed"] = p.Speed
	snap["pressedLeft"] = p.PressedLeft
	snap["pressedUp"] = p.PressedUp
	snap["pressedRight"] = p.PressedRight
	snap["pressedDown"] = p.PressedDown
	return snap
}

// Object is a free-form entity whose state is a field map. Apply merges
// partial payloads permissively; reserved identity fields are never
// overwritten.
type Object struct {
	Base
	Fields Snapshot
}

// NewObject builds a free-form entity.
func NewObject(kind, id string, fields Snapshot) *Object {
	if fields == nil {
		fields = Snapshot{}
	}
	return &Object{Base: NewBase(kind, id), Fields: fields.Clone()}
}

// Apply merges data into the object's fields.
func (o *Object) Apply(data map[string]any) {
	if o.Fields == nil {
		o.Fields = Snapshot{}
	}
	for k, v := range data {
		if k == "id" || k == "objectType" {
			continue
		}
		o.Fields[k] = v
	}
}

// Position implements Positionable when the fields carry numeric x and y.
func (o *Object) Position() (float64, float64) {
	return number(o.Fields["x"]), number(o.Fields["y"])
}

// InitSnapshot implements Entity.
func (o *Object) InitSnapshot() Snapshot {
	snap := o.Fields.Clone()
	if snap == nil {
		snap = Snapshot{}
	}
	for k, v := range o.header(true) {
		snap[k] = v
	}
	return snap
}

// Snapshot implements Entity.
func (o *Object) Snapshot() Snapshot {
	snap := o.Fields.Clone()
	if snap == nil {
		snap = Snapshot{}
	}
	snap["id"] = o.id
	return snap
}

// ReturnObject implements Returner.
func (o *Object) ReturnObject() Snapshot {
	return o.InitSnapshot()
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
