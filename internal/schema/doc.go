// Package schema holds the virtual relational schema the translator compiles
// against, and the rules that map it onto physical documents.
//
// Every table carries a MergeKind:
//
//	STANDALONE  the table owns a collection; one row is one document
//	EMBEDDABLE  the table owns a collection, and every table that references
//	            it keeps a nested copy of the referenced row under the
//	            embeddable table's name
//	MERGE       the table has no collection; its rows are elements of an array
//	            field, named after the table, inside the parent's documents
//
// A Model is built once from table definitions, validated, and read-only
// afterwards. It may be shared between goroutines without locking.
package schema
