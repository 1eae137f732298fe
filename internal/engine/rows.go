package engine

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docbridge/internal/docir"
)

// Result is the outcome of one statement.
//
// Queries fill Columns and Rows. Row values are the BSON values the store
// returned; a field missing from a document reads as nil (NULL). Writes
// fill Affected, BatchID and FanOut.
type Result struct {
	Columns []string
	Rows    [][]any

	Affected int64
	BatchID  string
	FanOut   int
}

// adaptRows turns pipeline output into rows of the visible columns.
//
// A scalar aggregate over no input still yields one row, the way SQL
// does: COUNT columns read 0 and every other column reads NULL.
func adaptRows(p *docir.Pipeline, docs []bson.D) *Result {
	cols := p.VisibleColumns()
	res := &Result{Columns: make([]string, len(cols)), Rows: [][]any{}}
	for i, c := range cols {
		res.Columns[i] = c.Label
	}

	if len(docs) == 0 && p.ScalarAggregate {
		row := make([]any, len(cols))
		for i, c := range cols {
			if c.CountLike {
				row[i] = int64(0)
			}
		}
		res.Rows = append(res.Rows, row)
		return res
	}

	for _, d := range docs {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = lookup(d, c.Key)
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// documentRows turns arbitrary documents into rows over the union of their
// top-level keys.
func documentRows(docs []bson.D) *Result {
	res := &Result{Rows: [][]any{}}
	index := map[string]int{}
	for _, d := range docs {
		for _, e := range d {
			if _, ok := index[e.Key]; !ok {
				index[e.Key] = len(res.Columns)
				res.Columns = append(res.Columns, e.Key)
			}
		}
	}
	for _, d := range docs {
		row := make([]any, len(res.Columns))
		for _, e := range d {
			row[index[e.Key]] = e.Value
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func lookup(d bson.D, key string) any {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// FormatValue renders a row value for display.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case bson.D, bson.A, primitive.Regex:
		return docir.ValueJSON(val)
	default:
		return fmt.Sprint(val)
	}
}
