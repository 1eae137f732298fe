// Package querydoc translates relational commands into document-store
// operations.
//
// Reads compile to an aggregation pipeline over one collection: MERGE tables
// are reached by unwinding their parent's array, EMBEDDABLE tables by reading
// the nested copy. Joins are only accepted where they mirror one of those
// embedding relationships.
//
// Writes compile to a primary operation plus the fan-out that keeps embedded
// copies consistent. Fan-out depends on the current contents of the store,
// so mutation compilation reads through a Fetcher.
//
// All translation errors are *TranslationError values raised before any
// write is issued.
package querydoc
