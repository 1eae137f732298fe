// Package docir is the translator's target model: document expressions,
// aggregation pipeline stages and mutation operations.
//
// Everything here is plain data. Compilers in querydoc build these values;
// the engine hands them to a Store. Rendering to BSON happens in one place
// (Filter, Agg, Pipeline.BSON) so every consumer sees the same documents.
//
// An expression renders two ways:
//
//	Filter(e)  query-filter form, used by $match stages and write filters:
//	           {"ShipCity": "Paris"}, {"Freight": {"$gt": 10}}
//	Agg(e)     aggregation-expression form, used by $project and $group:
//	           {"$gt": ["$Freight", 10]}
//
// Filter falls back to {"$expr": Agg(e)} for expressions that have no
// query-filter spelling, such as comparisons between two fields.
package docir
