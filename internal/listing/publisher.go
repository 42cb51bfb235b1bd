package listing

import (
	"github.com/justyntemme/razorlist/internal/collection"
	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/metrics"
	"github.com/justyntemme/razorlist/internal/model"
)

type publishKind int

const (
	publishReconcile publishKind = iota
	publishPrepare
	publishNotify
)

type publishOp struct {
	kind     publishKind
	items    []*model.Item
	target   string
	path     string
	property string
	ack      chan publishAck
}

type publishAck struct {
	patches []collection.Patch
	changed bool // prepare: the collection switched targets
	empty   bool // prepare: nothing is published
}

// publisher is the only goroutine that writes the published collection.
// Everyone else sends it messages and, for structural changes, waits for
// the acknowledgement.
type publisher struct {
	coll *collection.Published
	ops  chan publishOp
	done chan struct{}
}

func newPublisher(coll *collection.Published) *publisher {
	p := &publisher{
		coll: coll,
		ops:  make(chan publishOp, 64),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *publisher) run() {
	for {
		select {
		case <-p.done:
			return
		case op := <-p.ops:
			p.handle(op)
		}
	}
}

func (p *publisher) handle(op publishOp) {
	switch op.kind {
	case publishReconcile:
		patches := p.coll.Reconcile(op.items)
		ops := make([]string, len(patches))
		for i, pt := range patches {
			ops[i] = pt.Op.String()
		}
		metrics.RecordReconcile(ops)
		op.ack <- publishAck{patches: patches}

	case publishPrepare:
		var ack publishAck
		if p.coll.Target() != op.target {
			if p.coll.Len() > 0 {
				debug.Log(debug.COLLECTION, "clearing %d items of %q before listing %q", p.coll.Len(), p.coll.Target(), op.target)
			}
			ack.patches = p.coll.Clear()
			p.coll.SetTarget(op.target)
			ack.changed = true
		}
		ack.empty = p.coll.Len() == 0
		op.ack <- ack

	case publishNotify:
		p.coll.NotifyPropertyChanged(op.path, op.property)
	}
}

// send delivers op and waits for its acknowledgement. It returns false if
// the publisher has stopped.
func (p *publisher) send(op publishOp) (publishAck, bool) {
	op.ack = make(chan publishAck, 1)
	select {
	case p.ops <- op:
	case <-p.done:
		return publishAck{}, false
	}
	select {
	case ack := <-op.ack:
		return ack, true
	case <-p.done:
		return publishAck{}, false
	}
}

func (p *publisher) reconcile(items []*model.Item) []collection.Patch {
	ack, _ := p.send(publishOp{kind: publishReconcile, items: items})
	return ack.patches
}

// prepare switches the collection to target, clearing items of any other
// target first.
func (p *publisher) prepare(target string) (changed, empty bool) {
	ack, _ := p.send(publishOp{kind: publishPrepare, target: target})
	return ack.changed, ack.empty
}

func (p *publisher) NotifyPropertyChanged(path, property string) {
	select {
	case p.ops <- publishOp{kind: publishNotify, path: path, property: property}:
	case <-p.done:
	}
}

func (p *publisher) stop() {
	close(p.done)
}
