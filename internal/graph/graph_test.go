package graph

import (
	"encoding/json"
	"testing"
	"time"
)

func mustExpand(t *testing.T, path string, data string, state int64) []Op {
	t.Helper()
	ops, err := Expand(ParsePath(path), json.RawMessage(data))
	if err != nil {
		t.Fatalf("Expand(%s): %v", path, err)
	}
	for i := range ops {
		ops[i].State = state
	}
	return ops
}

func applyAll(g *Graph, ops []Op) []Change {
	var out []Change
	for _, op := range ops {
		out = append(out, g.Apply(op)...)
	}
	return out
}

func TestExpand_ObjectScalarAndNull(t *testing.T) {
	ops, err := Expand(ParsePath("room/approvals/a1"), json.RawMessage(`{"id":"a1","name":"ანა","status":"pending","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("Expand object: %v", err)
	}
	if len(ops) != 1 || len(ops[0].Fields) != 4 {
		t.Fatalf("expected one op with 4 fields, got %+v", ops)
	}

	ops, err = Expand(ParsePath("room/approvals/a1/status"), json.RawMessage(`"approved"`))
	if err != nil {
		t.Fatalf("Expand scalar: %v", err)
	}
	if len(ops) != 1 || ops[0].Path.String() != "room/approvals/a1" || string(ops[0].Fields["status"]) != `"approved"` {
		t.Fatalf("scalar put should target the parent node, got %+v", ops)
	}

	ops, err = Expand(ParsePath("room/approvals"), json.RawMessage(`null`))
	if err != nil {
		t.Fatalf("Expand null: %v", err)
	}
	if len(ops) != 1 || !ops[0].Tombstone {
		t.Fatalf("null put should be a tombstone, got %+v", ops)
	}
}

func TestExpand_NestedObjectsBecomeChildren(t *testing.T) {
	ops, err := Expand(ParsePath("room"), json.RawMessage(`{"title":"x","approvals":{"a1":{"name":"n"}}}`))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	if ops[0].Path.String() != "room" || ops[1].Path.String() != "room/approvals/a1" {
		t.Errorf("unexpected op paths: %s, %s", ops[0].Path, ops[1].Path)
	}
}

func TestExpand_Rejects(t *testing.T) {
	cases := []struct {
		path Path
		data string
	}{
		{Path{"room", "list"}, `[1,2]`},
		{Path{"room"}, `"scalar-without-parent"`},
		{Path{"room", "", "x"}, `{"a":1}`},
		{Path{"room", "n"}, `{"bad":[1]}`},
		{nil, `{"a":1}`},
	}
	for _, tc := range cases {
		if _, err := Expand(tc.path, json.RawMessage(tc.data)); err == nil {
			t.Errorf("Expand(%v, %s) should fail", tc.path, tc.data)
		}
	}
}

func TestGraph_LastWriteWinsPerField(t *testing.T) {
	g := New()
	applyAll(g, mustExpand(t, "r/approvals/a1", `{"name":"ანა","status":"pending"}`, 10))

	changes := applyAll(g, mustExpand(t, "r/approvals/a1/status", `"approved"`, 20))
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if string(changes[0].Fields["status"].Value) != `"approved"` {
		t.Errorf("status should be approved, got %s", changes[0].Fields["status"].Value)
	}
	if string(changes[0].Fields["name"].Value) != `"ანა"` {
		t.Error("name must not be rewritten by a status write")
	}

	// An older write arriving late loses.
	if changes := applyAll(g, mustExpand(t, "r/approvals/a1/status", `"pending"`, 15)); len(changes) != 0 {
		t.Errorf("stale write should not change the node, got %+v", changes)
	}
	if v := g.Node(ParsePath("r/approvals/a1"))["status"].Value; string(v) != `"approved"` {
		t.Errorf("status reverted to %s", v)
	}
}

func TestGraph_EqualStateTieBreakIsDeterministic(t *testing.T) {
	a, b := New(), New()
	x := mustExpand(t, "r/n/f", `"alpha"`, 5)
	y := mustExpand(t, "r/n/f", `"beta"`, 5)

	applyAll(a, x)
	applyAll(a, y)
	applyAll(b, y)
	applyAll(b, x)

	va := a.Node(ParsePath("r/n"))["f"].Value
	vb := b.Node(ParsePath("r/n"))["f"].Value
	if string(va) != string(vb) {
		t.Fatalf("replicas diverged: %s vs %s", va, vb)
	}
	if string(va) != `"beta"` {
		t.Errorf("expected lexically greater value to win, got %s", va)
	}
}

func TestGraph_IdempotentRewrite(t *testing.T) {
	g := New()
	applyAll(g, mustExpand(t, "r/a/x", `{"status":"approved"}`, 10))
	if changes := applyAll(g, mustExpand(t, "r/a/x", `{"status":"approved"}`, 10)); len(changes) != 0 {
		t.Errorf("replaying the same write should be a no-op, got %+v", changes)
	}
}

func TestGraph_TombstoneClearsDescendants(t *testing.T) {
	g := New()
	applyAll(g, mustExpand(t, "r/approvals/a1", `{"name":"a"}`, 10))
	applyAll(g, mustExpand(t, "r/approvals/a2", `{"name":"b"}`, 11))
	applyAll(g, mustExpand(t, "r/meta", `{"title":"exam"}`, 12))

	changes := applyAll(g, mustExpand(t, "r/approvals", `null`, 30))
	removed := 0
	for _, c := range changes {
		if c.Removed() {
			removed++
		}
	}
	if removed != 3 { // a1, a2 and the approvals node itself
		t.Errorf("expected 3 removed changes, got %d (%+v)", removed, changes)
	}
	if len(g.Children(ParsePath("r/approvals"))) != 0 {
		t.Error("approvals should have no children after reset")
	}
	if g.Node(ParsePath("r/meta")) == nil {
		t.Error("siblings of the cleared node must survive")
	}
}

func TestGraph_WritesAfterResetSurviveEarlierOnesDont(t *testing.T) {
	g := New()
	applyAll(g, mustExpand(t, "r/approvals", `null`, 100))

	if changes := applyAll(g, mustExpand(t, "r/approvals/old", `{"name":"late"}`, 90)); len(changes) != 0 {
		t.Error("write stamped before the reset must be dropped")
	}
	if changes := applyAll(g, mustExpand(t, "r/approvals/new", `{"name":"fresh"}`, 110)); len(changes) != 1 {
		t.Error("write stamped after the reset must be kept")
	}
	children := g.Children(ParsePath("r/approvals"))
	if _, ok := children["new"]; !ok || len(children) != 1 {
		t.Errorf("unexpected children after reset: %v", children)
	}
}

func TestGraph_ChildrenIncludesIntermediateNodes(t *testing.T) {
	g := New()
	applyAll(g, mustExpand(t, "r/approvals/a1", `{"name":"a"}`, 1))

	children := g.Children(ParsePath("r"))
	if _, ok := children["approvals"]; !ok {
		t.Fatalf("expected implicit child 'approvals', got %v", children)
	}
}

func TestGraph_RestoreRespectsTombstones(t *testing.T) {
	g := New()
	g.RestoreTombstone(ParsePath("r/approvals"), 50)
	g.Restore(ParsePath("r/approvals/a1"), "name", Field{Value: json.RawMessage(`"old"`), State: 40})
	g.Restore(ParsePath("r/approvals/a2"), "name", Field{Value: json.RawMessage(`"new"`), State: 60})

	if g.Node(ParsePath("r/approvals/a1")) != nil {
		t.Error("restored field older than tombstone should be ignored")
	}
	if g.Node(ParsePath("r/approvals/a2")) == nil {
		t.Error("restored field newer than tombstone should be loaded")
	}
}

func TestClock_MonotonicWithinMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	c := NewClockAt(func() time.Time { return fixed })

	a := c.Next()
	b := c.Next()
	if b <= a {
		t.Fatalf("clock went backwards: %d then %d", a, b)
	}

	c.Observe(b + 1000)
	if n := c.Next(); n <= b+1000 {
		t.Errorf("clock should move past observed state, got %d", n)
	}
}

func TestPath_Helpers(t *testing.T) {
	p := ParsePath("/room/approvals/a1/")
	if p.String() != "room/approvals/a1" {
		t.Errorf("ParsePath trimmed wrong: %s", p)
	}
	if p.Key() != "a1" || p.Parent().String() != "room/approvals" {
		t.Errorf("Key/Parent wrong: %s %s", p.Key(), p.Parent())
	}
	if !p.HasPrefix(ParsePath("room")) || p.HasPrefix(ParsePath("other")) {
		t.Error("HasPrefix wrong")
	}
	// Child must not alias the parent's backing array.
	parent := p.Parent()
	c1 := parent.Child("x")
	c2 := parent.Child("y")
	if c1.Key() != "x" || c2.Key() != "y" {
		t.Errorf("Child aliasing: %s %s", c1, c2)
	}
}
