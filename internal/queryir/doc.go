// Package queryir defines the resolved relational command tree the
// translator consumes.
//
// Parsing SQL and resolving names against metadata happen upstream; by the
// time a command reaches this package every table reference names a schema
// table and every literal is a typed ir.Value.
//
// SEALED INTERFACES:
//
// Statement, Expr and TableExpr are sealed interfaces using the marker method
// pattern. Only types in this package implement them, so compilers can use
// exhaustive type switches:
//
//	switch s := stmt.(type) {
//	case *Select:
//	    // compile to a pipeline
//	case *Insert, *Update, *Delete:
//	    // compile to mutation ops
//	default:
//	    // impossible - every Statement type is listed above
//	}
//
// Commands can also be written as YAML documents (see Decode), which is how
// the CLI and the scenario harness feed the translator without a SQL parser.
package queryir
