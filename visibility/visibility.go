// Package visibility tracks which objects are drawn and in what order.
//
// Depth-tested objects draw first; the depth buffer makes their relative
// order irrelevant. Objects that skip depth testing composite afterwards in a
// stable back-to-front queue the caller controls by the order it shows
// objects or toggles their depth-test state.
package visibility

import (
	"fmt"

	"github.com/vkngwrapper/render/object"
)

// Registry is the visible set plus the ordered queue of visible objects that
// skip depth testing. Not safe for concurrent use; the frame loop owns it.
type Registry struct {
	visible  []*object.Object
	members  map[*object.Object]struct{}
	deferred []*object.Object
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[*object.Object]struct{}),
	}
}

// Show marks o visible. Objects skipping depth testing join the back of the
// compositing queue. Showing an already-visible object is a no-op.
func (r *Registry) Show(o *object.Object) {
	if _, ok := r.members[o]; ok {
		return
	}
	r.members[o] = struct{}{}
	r.visible = append(r.visible, o)
	if !o.State.DepthTest {
		r.deferred = append(r.deferred, o)
	}
}

// Hide removes o from the visible set and, when present, the compositing
// queue. Hiding an invisible object is a no-op.
func (r *Registry) Hide(o *object.Object) {
	if _, ok := r.members[o]; !ok {
		return
	}
	delete(r.members, o)
	r.visible = remove(r.visible, o)
	if !o.State.DepthTest {
		r.deferred = remove(r.deferred, o)
	}
}

// HideAll hides every object in os.
func (r *Registry) HideAll(os []*object.Object) {
	for _, o := range os {
		r.Hide(o)
	}
}

// IsVisible reports whether o is currently shown.
func (r *Registry) IsVisible(o *object.Object) bool {
	_, ok := r.members[o]
	return ok
}

// VisibleCount returns the number of visible objects.
func (r *Registry) VisibleCount() int {
	return len(r.visible)
}

// DepthTestChanged must be called after o.State.DepthTest is flipped. For a
// visible object it moves o between the depth-tested set and the back of the
// compositing queue; for an invisible object it is a no-op. Calling it
// without an actual state flip is a contract violation.
func (r *Registry) DepthTestChanged(o *object.Object) {
	if _, ok := r.members[o]; !ok {
		return
	}

	if o.State.DepthTest {
		if !contains(r.deferred, o) {
			panic(fmt.Sprintf("visibility: object %p became depth-tested but was not queued", o))
		}
		r.deferred = remove(r.deferred, o)
		return
	}

	if contains(r.deferred, o) {
		panic(fmt.Sprintf("visibility: object %p became depth-test-skipping but is already queued", o))
	}
	r.deferred = append(r.deferred, o)
}

// RenderOrder returns this frame's draw order: every visible depth-tested
// object, then the compositing queue back to front. The returned slice is
// freshly allocated each call.
func (r *Registry) RenderOrder() []*object.Object {
	order := make([]*object.Object, 0, len(r.visible))
	for _, o := range r.visible {
		if o.State.DepthTest {
			order = append(order, o)
		}
	}
	return append(order, r.deferred...)
}

func remove(s []*object.Object, o *object.Object) []*object.Object {
	for i, candidate := range s {
		if candidate == o {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func contains(s []*object.Object, o *object.Object) bool {
	for _, candidate := range s {
		if candidate == o {
			return true
		}
	}
	return false
}
