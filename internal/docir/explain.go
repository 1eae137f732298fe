package docir

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"
	"go.mongodb.org/mongo-driver/bson"
)

// CompactJSON renders a document as relaxed Extended JSON on one line.
func CompactJSON(d bson.D) string {
	data, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return fmt.Sprintf("<unrenderable: %v>", err)
	}
	return string(data)
}

// ValueJSON renders any BSON value, including scalars and arrays, which
// cannot be marshaled on their own.
func ValueJSON(v any) string {
	s := CompactJSON(bson.D{{Key: "v", Value: v}})
	if strings.HasPrefix(s, `{"v":`) && strings.HasSuffix(s, "}") {
		return s[len(`{"v":`) : len(s)-1]
	}
	return s
}

// Explain renders a pipeline as text: the collection, then one stage per line.
func (p *Pipeline) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "collection: %s\n", p.Collection)
	for _, s := range p.Stages {
		b.WriteString(CompactJSON(s.BSON()))
		b.WriteByte('\n')
	}
	return b.String()
}

// ExplainTree renders a pipeline as a tree, one branch per stage.
func (p *Pipeline) ExplainTree() string {
	root := treeprint.NewWithRoot("aggregate " + p.Collection)
	for _, s := range p.Stages {
		addStage(root, s.BSON())
	}
	if cols := p.VisibleColumns(); len(cols) > 0 {
		branch := root.AddBranch("columns")
		for _, c := range cols {
			branch.AddNode(fmt.Sprintf("%s AS %s", c.Key, c.Label))
		}
	}
	return root.String()
}

func addStage(root treeprint.Tree, stage bson.D) {
	for _, e := range stage {
		body, ok := e.Value.(bson.D)
		if !ok {
			root.AddBranch(e.Key).AddNode(ValueJSON(e.Value))
			continue
		}
		branch := root.AddBranch(e.Key)
		for _, field := range body {
			branch.AddNode(fmt.Sprintf("%s: %s", field.Key, ValueJSON(field.Value)))
		}
	}
}

// Explain renders a mutation as text: the statement, then one op per line.
// Fan-out ops are marked.
func (m *Mutation) Explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.Statement, m.Table)
	for _, op := range m.Ops {
		fmt.Fprintf(&b, "op: %s\n", CompactJSON(op.BSON()))
	}
	for _, op := range m.FanOut {
		fmt.Fprintf(&b, "fanout: %s\n", CompactJSON(op.BSON()))
	}
	return b.String()
}

// ExplainTree renders a mutation as a tree, one branch per op.
func (m *Mutation) ExplainTree() string {
	root := treeprint.NewWithRoot(m.Statement + " " + m.Table)
	add := func(label string, ops []Op) {
		if len(ops) == 0 {
			return
		}
		group := root.AddBranch(label)
		for _, op := range ops {
			branch := group.AddBranch(fmt.Sprintf("%s %s", op.Kind(), op.Target()))
			for _, field := range op.BSON() {
				if field.Key == "op" || field.Key == "collection" {
					continue
				}
				branch.AddNode(fmt.Sprintf("%s: %s", field.Key, ValueJSON(field.Value)))
			}
		}
	}
	add("ops", m.Ops)
	add("fanout", m.FanOut)
	return root.String()
}
