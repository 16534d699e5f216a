package domain

import "math"

// DefaultActivationDistance is how far the pointer must travel before a
// press becomes a drag.
const DefaultActivationDistance = 3.0

// Point is a pointer position in client units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointerSensor recognises drag gestures from pointer input that the client
// has already hit-tested. A press that is released before the pointer moved
// past the activation distance is a click, not a drag.
type PointerSensor struct {
	handler  DragHandler
	distance float64
	editing  func(Target) bool

	pressed  bool
	dragging bool
	active   Target
	origin   Point
	over     *Target
}

// SensorOption configures a PointerSensor.
type SensorOption func(*PointerSensor)

// WithActivationDistance overrides DefaultActivationDistance. Negative values are ignored.
func WithActivationDistance(d float64) SensorOption {
	return func(s *PointerSensor) {
		if d >= 0 {
			s.distance = d
		}
	}
}

// WithEditing excludes entities for which fn reports true from drag recognition.
func WithEditing(fn func(Target) bool) SensorOption {
	return func(s *PointerSensor) { s.editing = fn }
}

// NewPointerSensor creates a sensor delivering gestures to h.
func NewPointerSensor(h DragHandler, opts ...SensorOption) *PointerSensor {
	s := &PointerSensor{handler: h, distance: DefaultActivationDistance}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dragging reports whether a gesture has been recognised and not yet ended.
func (s *PointerSensor) Dragging() bool { return s.dragging }

// PointerDown presses on active. It reports false when the press is ignored
// because another press is in progress or the entity is being edited.
func (s *PointerSensor) PointerDown(active Target, at Point) bool {
	if s.pressed {
		return false
	}
	if s.editing != nil && s.editing(active) {
		return false
	}
	s.pressed = true
	s.dragging = false
	s.active = active
	s.origin = at
	s.over = nil
	return true
}

// PointerMove tracks the pointer. Once the gesture is active, a DragOver is
// delivered every time the hovered target changes.
func (s *PointerSensor) PointerMove(at Point, over *Target) {
	if !s.pressed {
		return
	}
	if !s.dragging {
		if math.Hypot(at.X-s.origin.X, at.Y-s.origin.Y) <= s.distance {
			return
		}
		s.dragging = true
		s.handler.OnDragStart(DragStart{Active: s.active})
	}
	if sameTarget(s.over, over) {
		return
	}
	s.over = cloneTarget(over)
	s.handler.OnDragOver(DragOver{Active: s.active, Over: cloneTarget(over)})
}

// PointerUp releases the press over the given target. It reports true when
// the press never became a drag.
func (s *PointerSensor) PointerUp(over *Target) bool {
	if !s.pressed {
		return false
	}
	dragging := s.dragging
	active := s.active
	s.reset()
	if !dragging {
		return true
	}
	s.handler.OnDragEnd(DragEnd{Active: active, Over: cloneTarget(over)})
	return false
}

// Cancel aborts the press. An active gesture ends without a target.
func (s *PointerSensor) Cancel() {
	if !s.pressed {
		return
	}
	dragging := s.dragging
	active := s.active
	s.reset()
	if dragging {
		s.handler.OnDragEnd(DragEnd{Active: active})
	}
}

func (s *PointerSensor) reset() {
	s.pressed = false
	s.dragging = false
	s.active = Target{}
	s.over = nil
}

func sameTarget(a, b *Target) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneTarget(t *Target) *Target {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
