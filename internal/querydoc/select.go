package querydoc

import (
	"fmt"
	"strings"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/queryir"
)

// outItem is one expanded select-list entry.
type outItem struct {
	expr  queryir.Expr
	alias string
	key   string
	label string
	// value is the compiled expression the projection writes under key.
	value docir.Expr
}

type selectPlan struct {
	sel *queryir.Select
	src *source
	// pre compiles against the documents entering the pipeline; out compiles
	// against the documents after grouping, or equals pre without grouping.
	pre *exprCompiler
	out *exprCompiler

	items   []*outItem
	stages  []docir.Stage
	project []docir.ProjectField
	columns []docir.Column
	hidden  []docir.Column
	// regrouped is set once a grouped DISTINCT query has grouped twice.
	regrouped bool
}

// CompileSelect translates a query into an aggregation pipeline.
//
// Stages are emitted in a fixed order: unwinds, match, group, having match,
// project, sort, skip, limit. Output fields use the select alias or a
// synthetic _m<i> key so they never collide with stored field names.
func (c *Compiler) CompileSelect(sel *queryir.Select) (*docir.Pipeline, error) {
	if err := queryir.Validate(sel).Err(); err != nil {
		return nil, &TranslationError{Code: ErrCodeUnsupportedExpression, Message: "malformed query", Construct: "SELECT", Err: err}
	}
	src, err := c.resolveFrom(sel.From)
	if err != nil {
		return nil, err
	}
	pre := newExprCompiler(src.scope)
	p := &selectPlan{sel: sel, src: src, pre: pre, out: pre}
	if err := p.expandItems(); err != nil {
		return nil, err
	}

	p.stages = append(p.stages, src.unwinds...)
	if err := p.planWhere(); err != nil {
		return nil, err
	}

	grouped := len(sel.GroupBy) > 0 || sel.Having != nil || p.hasAggregates()
	switch {
	case grouped:
		if err := p.planGroup(); err != nil {
			return nil, err
		}
		if sel.Distinct {
			p.regroup()
		}
	case sel.Distinct:
		if err := p.planDistinct(); err != nil {
			return nil, err
		}
	default:
		for _, it := range p.items {
			d, err := p.pre.compile(it.expr)
			if err != nil {
				return nil, err
			}
			it.value = d
			p.project = append(p.project, docir.ProjectField{Name: it.key, Expr: d})
		}
	}

	var sortKeys []docir.SortKey
	for i, o := range sel.OrderBy {
		key, err := p.orderKey(i, o.Expr)
		if err != nil {
			return nil, err
		}
		sortKeys = append(sortKeys, docir.SortKey{Name: key, Desc: o.Desc})
	}

	p.stages = append(p.stages, &docir.Project{Fields: p.project})
	if len(sortKeys) > 0 {
		p.stages = append(p.stages, &docir.Sort{Keys: sortKeys})
	}
	if sel.Offset != nil && *sel.Offset > 0 {
		p.stages = append(p.stages, &docir.Skip{N: *sel.Offset})
	}
	if sel.Limit != nil {
		if *sel.Limit == 0 {
			// $limit must be positive.
			p.stages = append(p.stages, &docir.Match{Filter: &docir.Literal{Value: ir.Bool(false)}})
		} else {
			p.stages = append(p.stages, &docir.Limit{N: *sel.Limit})
		}
	}

	for _, it := range p.items {
		p.columns = append(p.columns, docir.Column{Key: it.key, Label: it.label, CountLike: isCount(it.expr)})
	}
	p.columns = append(p.columns, p.hidden...)

	return &docir.Pipeline{
		Collection:      src.collection,
		Stages:          p.stages,
		Columns:         p.columns,
		ScalarAggregate: p.scalar(grouped),
	}, nil
}

// scalar reports whether the query yields its single row even over no
// documents. A HAVING, a positive OFFSET or LIMIT 0 can remove that row.
func (p *selectPlan) scalar(grouped bool) bool {
	sel := p.sel
	if !grouped || len(sel.GroupBy) > 0 || sel.Having != nil {
		return false
	}
	if sel.Offset != nil && *sel.Offset > 0 {
		return false
	}
	return sel.Limit == nil || *sel.Limit > 0
}

func (p *selectPlan) expandItems() error {
	for _, si := range p.sel.Items {
		if st, ok := si.Expr.(*queryir.Star); ok {
			bindings := p.src.scope.bindings
			if st.Table != "" {
				b := p.src.scope.find(st.Table)
				if b == nil {
					return &TranslationError{Code: ErrCodeMetadataResolution, Message: "no table in scope has this name", Construct: st.Table}
				}
				bindings = []*binding{b}
			}
			for _, b := range bindings {
				for _, col := range b.table.SelectableColumns() {
					if err := p.addItem(&queryir.ColumnRef{Table: b.ref, Column: col.Name}, "", col.Name); err != nil {
						return err
					}
				}
			}
			continue
		}

		label := si.Alias
		if label == "" {
			if cr, ok := si.Expr.(*queryir.ColumnRef); ok {
				label = cr.Column
			} else {
				label = queryir.Format(si.Expr)
			}
		}
		if err := p.addItem(si.Expr, si.Alias, label); err != nil {
			return err
		}
	}
	return nil
}

func (p *selectPlan) addItem(e queryir.Expr, alias, label string) error {
	key := alias
	if key == "" {
		key = fmt.Sprintf("_m%d", len(p.items))
	} else if strings.HasPrefix(alias, "$") || strings.Contains(alias, ".") {
		return unsupportedExpr(alias, "output name cannot start with '$' or contain '.'")
	}
	for _, it := range p.items {
		if it.key == key {
			return unsupportedExpr(alias, "duplicate output name")
		}
	}
	p.items = append(p.items, &outItem{expr: e, alias: alias, key: key, label: label})
	return nil
}

func (p *selectPlan) hasAggregates() bool {
	for _, it := range p.items {
		if queryir.ContainsAggregate(it.expr) {
			return true
		}
	}
	for _, o := range p.sel.OrderBy {
		if queryir.ContainsAggregate(o.Expr) {
			return true
		}
	}
	return false
}

func (p *selectPlan) planWhere() error {
	conj := append(append([]queryir.Expr(nil), p.src.residual...), queryir.Conjuncts(p.sel.Where)...)
	if len(conj) == 0 {
		return nil
	}
	fc := *p.pre
	fc.filter = true
	compiled, err := fc.compileAll(conj)
	if err != nil {
		return err
	}
	var filter docir.Expr = &docir.And{Exprs: compiled}
	if len(compiled) == 1 {
		filter = compiled[0]
	}
	p.stages = append(p.stages, &docir.Match{Filter: filter})
	return nil
}

// planGroup emits the $group stage and the HAVING match, and projects every
// item from the grouped documents.
func (p *selectPlan) planGroup() error {
	g := newGroupContext(p.pre)
	group := &docir.Group{}

	// Group keys reuse the key of the select item they match.
	itemKeys := map[string]string{}
	for _, it := range p.items {
		if queryir.ContainsAggregate(it.expr) {
			continue
		}
		if d, err := p.pre.compile(it.expr); err == nil {
			if _, dup := itemKeys[exprKey(d)]; !dup {
				itemKeys[exprKey(d)] = it.key
			}
		}
	}
	for j, e := range p.sel.GroupBy {
		d, err := p.pre.compile(e)
		if err != nil {
			return err
		}
		k := exprKey(d)
		if _, dup := g.keys[k]; dup {
			continue
		}
		name, ok := itemKeys[k]
		if !ok {
			name = fmt.Sprintf("_g%d", j)
		}
		group.ID = append(group.ID, docir.GroupKey{Name: name, Expr: d})
		g.keys[k] = "_id." + name
	}

	var aggs []*queryir.Aggregate
	collect := func(e queryir.Expr) {
		queryir.Walk(e, func(n queryir.Expr) bool {
			if a, ok := n.(*queryir.Aggregate); ok {
				aggs = append(aggs, a)
				return false
			}
			return true
		})
	}
	for _, it := range p.items {
		collect(it.expr)
	}
	collect(p.sel.Having)
	for _, o := range p.sel.OrderBy {
		collect(o.Expr)
	}

	// An aggregate selected on its own is accumulated under the item's key.
	itemAggs := map[string]string{}
	for _, it := range p.items {
		if a, ok := it.expr.(*queryir.Aggregate); ok {
			k, err := g.aggKey(a)
			if err != nil {
				return err
			}
			if _, dup := itemAggs[k]; !dup {
				itemAggs[k] = it.key
			}
		}
	}
	names := map[string]string{}
	for _, a := range aggs {
		k, err := g.aggKey(a)
		if err != nil {
			return err
		}
		if _, done := g.aggs[k]; done {
			continue
		}
		name, ok := itemAggs[k]
		if !ok {
			name = fmt.Sprintf("_a%d", len(group.Accumulators))
		}
		acc, read, err := g.accumulator(name, a)
		if err != nil {
			return err
		}
		group.Accumulators = append(group.Accumulators, acc)
		g.aggs[k] = read
		names[k] = name
	}
	p.stages = append(p.stages, group)

	p.out = &exprCompiler{scope: p.pre.scope, post: g}
	if p.sel.Having != nil {
		d, err := p.out.compile(p.sel.Having)
		if err != nil {
			return err
		}
		p.stages = append(p.stages, &docir.Match{Filter: d, Having: true})
	}

	for _, it := range p.items {
		if a, ok := it.expr.(*queryir.Aggregate); ok && !a.Distinct {
			k, _ := g.aggKey(a)
			if names[k] == it.key {
				it.value = &docir.Field{Path: it.key}
				p.project = append(p.project, docir.ProjectField{Name: it.key, Passthrough: true})
				continue
			}
		}
		d, err := p.out.compile(it.expr)
		if err != nil {
			return err
		}
		it.value = d
		p.project = append(p.project, docir.ProjectField{Name: it.key, Expr: d})
	}
	return nil
}

// planDistinct implements SELECT DISTINCT by grouping on every item.
func (p *selectPlan) planDistinct() error {
	g := newGroupContext(p.pre)
	g.ungrouped = "ORDER BY column must appear in the select list of a DISTINCT query"
	group := &docir.Group{}
	for _, it := range p.items {
		d, err := p.pre.compile(it.expr)
		if err != nil {
			return err
		}
		group.ID = append(group.ID, docir.GroupKey{Name: it.key, Expr: d})
		if _, dup := g.keys[exprKey(d)]; !dup {
			g.keys[exprKey(d)] = "_id." + it.key
		}
	}
	p.stages = append(p.stages, group)
	p.out = &exprCompiler{scope: p.pre.scope, post: g}
	for _, it := range p.items {
		it.value = &docir.Field{Path: "_id." + it.key}
		p.project = append(p.project, docir.ProjectField{Name: it.key, Expr: it.value})
	}
	return nil
}

// regroup removes duplicate rows from a grouped query. The grouped items
// are projected, grouped again on every item and read back from _id.
func (p *selectPlan) regroup() {
	p.stages = append(p.stages, &docir.Project{Fields: p.project})
	group := &docir.Group{}
	p.project = nil
	for _, it := range p.items {
		group.ID = append(group.ID, docir.GroupKey{Name: it.key, Expr: &docir.Field{Path: it.key}})
		p.project = append(p.project, docir.ProjectField{Name: it.key, Expr: &docir.Field{Path: "_id." + it.key}})
	}
	p.stages = append(p.stages, group)
	p.regrouped = true
}

// orderKey returns the output field a sort key reads, adding a hidden
// projected field when the expression is not already selected.
func (p *selectPlan) orderKey(i int, e queryir.Expr) (string, error) {
	if lit, ok := e.(*queryir.Literal); ok {
		if n, ok := lit.Value.(ir.Int); ok {
			if n < 1 || int(n) > len(p.items) {
				return "", unsupportedExpr(queryir.Format(e), "ORDER BY position is out of range")
			}
			return p.items[n-1].key, nil
		}
	}
	if cr, ok := e.(*queryir.ColumnRef); ok && cr.Table == "" {
		for _, it := range p.items {
			if it.alias != "" && strings.EqualFold(it.alias, cr.Column) {
				return it.key, nil
			}
		}
	}

	d, err := p.out.compile(e)
	if err != nil {
		return "", err
	}
	k := exprKey(d)
	for _, it := range p.items {
		if it.value != nil && exprKey(it.value) == k {
			return it.key, nil
		}
	}

	if p.regrouped {
		return "", unsupportedExpr(queryir.Format(e), "ORDER BY column must appear in the select list of a DISTINCT query")
	}
	name := fmt.Sprintf("_s%d", i)
	p.project = append(p.project, docir.ProjectField{Name: name, Expr: d})
	p.hidden = append(p.hidden, docir.Column{Key: name, Label: queryir.Format(e), Hidden: true})
	return name, nil
}
