package reconcile

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/manpreetbhatti/inkwell/internal/protocol"
	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

func TestOwnEchoIsNotRedrawn(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")

	assert.Equal(t, 1, surface.NumStrokes())
	assert.Equal(t, 0, surface.appends)
	assert.Equal(t, "peerA", e.SelfID())

	indices, ok := e.PeerIndices("peerA")
	assert.Equal(t, true, ok)
	assert.Equal(t, []int{0}, indices)
	mustVerify(t, e)
}

func TestEchoWithinTolerance(t *testing.T) {
	e, surface, _ := newTestEngine()

	userDraw(e, surface, line(10, 10, 20, 20))
	assert.Equal(t, nil, e.Send())

	// what comes back went through float formatting somewhere along the way
	addFrom(t, e, "peerA", line(10.0004, 9.9996, 20, 20.0009))

	assert.Equal(t, "peerA", e.SelfID())
	assert.Equal(t, 1, surface.NumStrokes())
	assert.Equal(t, 0, surface.appends)
}

func TestEchoOutsideToleranceIsRemote(t *testing.T) {
	e, surface, _ := newTestEngine()

	userDraw(e, surface, line(10, 10, 20, 20))
	assert.Equal(t, nil, e.Send())
	addFrom(t, e, "peerB", line(10.01, 10, 20, 20))

	assert.Equal(t, "", e.SelfID())
	assert.Equal(t, 2, surface.NumStrokes())
	assert.Equal(t, 1, surface.appends)
	mustVerify(t, e)
}

func TestRemoteAddMaterializes(t *testing.T) {
	e, surface, _ := newTestEngine()

	addFrom(t, e, "peerB", line(0, 0, 1, 1), line(2, 2, 3, 3))

	assert.Equal(t, 2, surface.appends)
	assert.Equal(t, 2, surface.NumStrokes())
	indices, _ := e.PeerIndices("peerB")
	assert.Equal(t, []int{0, 1}, indices)
	mustVerify(t, e)
}

func TestRemoteUndoErasesTail(t *testing.T) {
	e, surface, _ := newTestEngine()

	addFrom(t, e, "peerB", line(0, 0, 1, 1), line(2, 2, 3, 3))
	eventFrom(t, e, "peerB", protocol.EventUndoStroke)

	strokes, _ := e.PeerStrokes("peerB")
	assert.Equal(t, 1, len(strokes))
	assert.Equal(t, []int{1}, surface.erased)
	assert.Equal(t, 1, surface.NumStrokes())
	mustVerify(t, e)
}

func TestLocalUndoRenumbersRemote(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, []int{0}, e.LocalIndices())

	addFrom(t, e, "peerB", line(5, 5, 6, 6))
	indices, _ := e.PeerIndices("peerB")
	assert.Equal(t, []int{1}, indices)

	assert.Equal(t, nil, e.Undo())

	assert.Equal(t, []int{0}, surface.erased)
	indices, _ = e.PeerIndices("peerB")
	assert.Equal(t, []int{0}, indices)
	assert.Equal(t, 1, surface.NumStrokes())
	assert.Equal(t, 0, len(e.LocalIndices()))

	// our id is unknown, so nothing goes out
	assert.Equal(t, 0, len(sender.sent))
	mustVerify(t, e)
}

func TestRemoteDeleteClearsOwnership(t *testing.T) {
	e, surface, _ := newTestEngine()

	addFrom(t, e, "peerB", line(0, 0, 1, 1), line(2, 2, 3, 3))
	userDraw(e, surface, line(9, 9, 8, 8))
	assert.Equal(t, []int{2}, e.LocalIndices())

	eventFrom(t, e, "peerB", protocol.EventDeleteStrokes)

	_, ok := e.PeerIndices("peerB")
	assert.Equal(t, false, ok)
	assert.Equal(t, 1, surface.NumStrokes())
	assert.Equal(t, []int{0}, e.LocalIndices())
	assert.Equal(t, [][2]float64{{9, 9}, {8, 8}}, surface.strokes[0])
	mustVerify(t, e)
}

func TestSnapshotReplacementPrunesDroppedStrokes(t *testing.T) {
	e, surface, _ := newTestEngine()

	a, b, c := line(0, 0, 1, 1), line(2, 2, 3, 3), line(4, 4, 5, 5)

	addFrom(t, e, "peerB", a, b)
	assert.Equal(t, 2, surface.appends)

	addFrom(t, e, "peerB", a, c)

	// a stays where it was, b goes, c is drawn
	assert.Equal(t, []int{1}, surface.erased)
	assert.Equal(t, 3, surface.appends)
	indices, _ := e.PeerIndices("peerB")
	assert.Equal(t, []int{0, 1}, indices)
	assert.Equal(t, [][2]float64{{4, 4}, {5, 5}}, surface.strokes[1])
	mustVerify(t, e)

	// reordering supersedes both
	addFrom(t, e, "peerB", c, a)
	assert.Equal(t, 5, surface.appends)
	assert.Equal(t, 2, surface.NumStrokes())
	assert.Equal(t, [][2]float64{{4, 4}, {5, 5}}, surface.strokes[0])
	mustVerify(t, e)
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	e, surface, _ := newTestEngine()

	addFrom(t, e, "peerB", line(0, 0, 1, 1), line(2, 2, 3, 3))
	addFrom(t, e, "peerB", line(0, 0, 1, 1), line(2, 2, 3, 3))

	assert.Equal(t, 2, surface.appends)
	assert.Equal(t, 0, len(surface.erased))
	mustVerify(t, e)
}

func TestResyncDeferredWhileDrawing(t *testing.T) {
	e, surface, _ := newTestEngine()

	e.BeginStroke()
	surface.BeginStrokeAt(7, 7, -1, false)

	addFrom(t, e, "peerB", line(0, 0, 1, 1))
	addFrom(t, e, "peerB", line(0, 0, 1, 1), line(2, 2, 3, 3))
	addFrom(t, e, "peerC", line(4, 4, 5, 5))

	assert.Equal(t, 0, surface.appends)
	assert.Equal(t, true, e.Pending())
	assert.Equal(t, true, e.Drawing())

	surface.UpdateStroke(7, 8)
	surface.EndStrokeAt(8, 8, false)
	e.EndStroke(stroke.FromPoints([2]float64{7, 7}, [2]float64{7, 8}, [2]float64{8, 8}))

	assert.Equal(t, false, e.Pending())
	assert.Equal(t, false, e.Drawing())
	assert.Equal(t, 3, surface.appends)
	assert.Equal(t, []int{0}, e.LocalIndices())

	b, _ := e.PeerIndices("peerB")
	c, _ := e.PeerIndices("peerC")
	assert.Equal(t, []int{1, 2}, b)
	assert.Equal(t, []int{3}, c)
	mustVerify(t, e)
}

func TestRepeatedSendsStayLocal(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	userDraw(e, surface, line(1, 1, 2, 2))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")

	userDraw(e, surface, line(2, 2, 3, 3))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")

	assert.Equal(t, 3, surface.NumStrokes())
	assert.Equal(t, 0, surface.appends)
	indices, _ := e.PeerIndices("peerA")
	assert.Equal(t, []int{0, 1, 2}, indices)
	mustVerify(t, e)
}

func TestStaleEchoIsReplacedByMatchingOne(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	first := sender.last(t)

	userDraw(e, surface, line(1, 1, 2, 2))
	assert.Equal(t, nil, e.Send())
	second := sender.last(t)

	// the first echo no longer matches what we last sent, so it looks remote
	deliver(t, e, first, "peerA")
	assert.Equal(t, 3, surface.NumStrokes())

	deliver(t, e, second, "peerA")
	assert.Equal(t, "peerA", e.SelfID())
	assert.Equal(t, 2, surface.NumStrokes())
	assert.Equal(t, []int{0, 1}, e.LocalIndices())
	mustVerify(t, e)
}

func TestSendAssignsStrokeIDsOnce(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	m1, err := protocol.Decode(stampedCopy(t, sender.last(t)))
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, e.Send())
	m2, err := protocol.Decode(stampedCopy(t, sender.last(t)))
	assert.Equal(t, nil, err)

	assert.NotEqual(t, "", m1.Strokes[0].ID)
	assert.Equal(t, m1.Strokes[0].ID, m2.Strokes[0].ID)
}

func stampedCopy(t *testing.T, data []byte) []byte {
	t.Helper()
	stamped, err := protocol.Stamp(data, "x")
	if err != nil {
		t.Fatalf("Failed to stamp: %v", err)
	}
	return stamped
}

func TestMalformedAndUnknownIgnored(t *testing.T) {
	e, surface, _ := newTestEngine()
	addFrom(t, e, "peerB", line(0, 0, 1, 1))

	e.Apply([]byte(`not json`))
	e.Apply([]byte(`{"event_type":"undo_stroke"}`))
	e.Apply([]byte(`{"id":"peerB"}`))
	e.Apply([]byte(`{"id":"peerB","event_type":"add_strokes"}`))
	e.Apply([]byte(`{"id":"peerB","event_type":"add_strokes","strokes":[{"x":[1],"y":[]}]}`))
	e.Apply([]byte(`{"id":"peerB","event_type":"wave"}`))
	e.ApplyMessage(protocol.Message{ID: "peerC", EventType: "wave"})

	assert.Equal(t, []string{"peerB"}, e.PeerIDs())
	strokes, _ := e.PeerStrokes("peerB")
	assert.Equal(t, 1, len(strokes))
	assert.Equal(t, 1, surface.NumStrokes())
	assert.Equal(t, 0, len(surface.erased))
	mustVerify(t, e)
}

func TestUnknownPeerEventsAreNoops(t *testing.T) {
	e, surface, _ := newTestEngine()

	eventFrom(t, e, "ghost", protocol.EventUndoStroke)
	eventFrom(t, e, "ghost", protocol.EventDeleteStrokes)
	addFrom(t, e, "peerB")
	eventFrom(t, e, "peerB", protocol.EventUndoStroke)

	assert.Equal(t, []string{"peerB"}, e.PeerIDs())
	assert.Equal(t, 0, surface.NumStrokes())
	mustVerify(t, e)
}

func TestEmptyEchoDoesNotIdentify(t *testing.T) {
	e, _, sender := newTestEngine()

	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")

	assert.Equal(t, "", e.SelfID())
}

func TestClearBeforeIdentity(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	addFrom(t, e, "peerB", line(5, 5, 6, 6))
	userDraw(e, surface, line(1, 1, 2, 2))

	assert.Equal(t, nil, e.Clear())

	assert.Equal(t, []int{2, 0}, surface.erased)
	assert.Equal(t, 1, surface.NumStrokes())
	indices, _ := e.PeerIndices("peerB")
	assert.Equal(t, []int{0}, indices)
	assert.Equal(t, 0, len(sender.sent))
	mustVerify(t, e)
}

func TestClearAfterIdentitySendsDelete(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")

	assert.Equal(t, nil, e.Clear())

	m, err := protocol.Decode(stampedCopy(t, sender.last(t)))
	assert.Equal(t, nil, err)
	assert.Equal(t, protocol.EventDeleteStrokes, m.EventType)
	_, ok := e.PeerIndices("peerA")
	assert.Equal(t, false, ok)
	assert.Equal(t, 0, surface.NumStrokes())

	// our own delete coming back changes nothing
	deliver(t, e, sender.last(t), "peerA")
	assert.Equal(t, 0, surface.NumStrokes())
	mustVerify(t, e)
}

func TestUndoOfUnsentStrokeStaysLocal(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")
	sentBefore := len(sender.sent)

	userDraw(e, surface, line(1, 1, 2, 2))
	assert.Equal(t, nil, e.Undo())

	assert.Equal(t, sentBefore, len(sender.sent))
	strokes, _ := e.PeerStrokes("peerA")
	assert.Equal(t, 1, len(strokes))

	assert.Equal(t, nil, e.Undo())
	assert.Equal(t, sentBefore+1, len(sender.sent))
	strokes, _ = e.PeerStrokes("peerA")
	assert.Equal(t, 0, len(strokes))
	mustVerify(t, e)
}

func TestFailedSendIsNotPublished(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")
	assert.Equal(t, "peerA", e.SelfID())
	sentBefore := len(sender.sent)

	userDraw(e, surface, line(1, 1, 2, 2))
	busy := errors.New("send buffer full")
	sender.fail = busy
	assert.Equal(t, busy, e.Send())
	sender.fail = nil

	// the second stroke never left, so peers still hold only the first
	assert.Equal(t, nil, e.Undo())
	assert.Equal(t, sentBefore, len(sender.sent))
	strokes, _ := e.PeerStrokes("peerA")
	assert.Equal(t, 1, len(strokes))
	assert.Equal(t, 1, surface.NumStrokes())

	assert.Equal(t, nil, e.Undo())
	assert.Equal(t, sentBefore+1, len(sender.sent))
	mustVerify(t, e)
}

func TestFailedSendKeepsEchoBatch(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	first := sender.last(t)

	userDraw(e, surface, line(5, 5, 6, 6))
	sender.fail = errors.New("closed")
	assert.NotEqual(t, nil, e.Send())

	// the echo of the batch that did go out still identifies us
	deliver(t, e, first, "peerA")
	assert.Equal(t, "peerA", e.SelfID())
	assert.Equal(t, 2, surface.NumStrokes())
	mustVerify(t, e)
}

func TestOwnUndoEchoIgnored(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	userDraw(e, surface, line(1, 1, 2, 2))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")

	assert.Equal(t, nil, e.Undo())
	deliver(t, e, sender.last(t), "peerA")

	strokes, _ := e.PeerStrokes("peerA")
	assert.Equal(t, 1, len(strokes))
	assert.Equal(t, 1, surface.NumStrokes())
	mustVerify(t, e)
}

func TestRebindForgetsIdentity(t *testing.T) {
	e, surface, sender := newTestEngine()

	userDraw(e, surface, line(0, 0, 1, 1))
	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA")
	addFrom(t, e, "peerB", line(3, 3, 4, 4))

	e.Rebind()

	assert.Equal(t, "", e.SelfID())
	assert.Equal(t, []string{"peerB"}, e.PeerIDs())
	assert.Equal(t, 2, surface.NumStrokes())
	mustVerify(t, e)

	assert.Equal(t, nil, e.Send())
	deliver(t, e, sender.last(t), "peerA2")
	assert.Equal(t, "peerA2", e.SelfID())
	assert.Equal(t, 2, surface.NumStrokes())
	assert.Equal(t, 1, surface.appends)
	mustVerify(t, e)
}

func TestUndoSymmetryAcrossPeers(t *testing.T) {
	r := newRelay(t)
	a, surfaceA := r.join("peerA")
	b, surfaceB := r.join("peerB")

	userDraw(a, surfaceA, line(0, 0, 1, 1))
	userDraw(a, surfaceA, line(1, 1, 2, 2))
	assert.Equal(t, nil, a.Send())
	r.flush()

	assert.Equal(t, 2, surfaceB.NumStrokes())

	assert.Equal(t, nil, a.Undo())
	r.flush()

	assert.Equal(t, surfaceA.NumStrokes(), surfaceB.NumStrokes())
	assert.Equal(t, surfaceA.strokes, surfaceB.strokes)
	mustVerify(t, a)
	mustVerify(t, b)

	assert.Equal(t, nil, a.Clear())
	r.flush()
	assert.Equal(t, 0, surfaceB.NumStrokes())
	mustVerify(t, b)
}

func TestRandomSessionsConverge(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"peerA", "peerB", "peerC"}

	for round := 0; round < 20; round++ {
		r := newRelay(t)
		engines := make([]*Engine, len(ids))
		surfaces := make([]*fakeSurface, len(ids))
		for i, id := range ids {
			engines[i], surfaces[i] = r.join(id)
		}

		for step := 0; step < 60; step++ {
			i := rng.Intn(len(ids))
			e := engines[i]
			switch op := rng.Intn(10); {
			case op < 4:
				userDraw(e, surfaces[i], randomStroke(rng))
			case op < 6:
				assert.Equal(t, nil, e.Send())
			case op < 8:
				assert.Equal(t, nil, e.Undo())
			case op < 9:
				assert.Equal(t, nil, e.Clear())
			default:
				r.flush()
			}
			for _, e := range engines {
				mustVerify(t, e)
			}
		}

		r.flush()
		total := 0
		for _, e := range engines {
			assert.Equal(t, nil, e.Send())
			total += len(e.LocalIndices())
		}
		r.flush()

		for i, e := range engines {
			mustVerify(t, e)
			if surfaces[i].NumStrokes() != total {
				t.Fatalf("Round %d: %s shows %d strokes, expected %d", round, ids[i], surfaces[i].NumStrokes(), total)
			}
		}
	}
}

func randomStroke(rng *rand.Rand) stroke.Stroke {
	n := 1 + rng.Intn(5)
	points := make([][2]float64, n)
	for i := range points {
		points[i] = [2]float64{rng.Float64() * 800, rng.Float64() * 600}
	}
	return stroke.FromPoints(points...)
}
