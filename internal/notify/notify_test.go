package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.clipd.dev/clipd/internal/item"
)

type recorder struct {
	name string
	got  []item.Item
	log  *[]string
}

func (r *recorder) Update(_ string, it item.Item) {
	r.got = append(r.got, it)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
}

type panicker struct{}

func (panicker) Update(string, item.Item) { panic("boom") }

func TestNotifyDeliversToAll(t *testing.T) {
	s := NewSubject()
	a := &recorder{}
	b := &recorder{}
	s.Attach(a)
	s.Attach(b)

	s.Notify("alice", item.NewText("hello"))

	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.Equal(t, "hello", a.got[0].Text())
}

func TestAttachSameObserverTwice(t *testing.T) {
	s := NewSubject()
	a := &recorder{}
	s.Attach(a)
	s.Attach(a)

	s.Notify("alice", item.NewText("once"))
	assert.Len(t, a.got, 1, "an observer attached twice must still receive each change once")
}

func TestDeliveryOrderMatchesAttachment(t *testing.T) {
	s := NewSubject()
	var log []string
	s.Attach(&recorder{name: "first", log: &log})
	s.Attach(&recorder{name: "second", log: &log})
	s.Attach(&recorder{name: "third", log: &log})

	s.Notify("alice", item.NewText("x"))
	assert.Equal(t, []string{"first", "second", "third"}, log)
}

func TestDetach(t *testing.T) {
	s := NewSubject()
	a := &recorder{}
	b := &recorder{}
	s.Attach(a)
	s.Attach(b)
	s.Detach(a)

	s.Notify("alice", item.NewText("x"))
	assert.Empty(t, a.got)
	assert.Len(t, b.got, 1)

	// Detaching again, or detaching something never attached, is harmless.
	s.Detach(a)
	s.Detach(&recorder{})
}

func TestPanickingObserverDoesNotStopDelivery(t *testing.T) {
	s := NewSubject()
	after := &recorder{}
	s.Attach(panicker{})
	s.Attach(after)

	require.NotPanics(t, func() {
		s.Notify("alice", item.NewText("x"))
	})
	assert.Len(t, after.got, 1)
}
