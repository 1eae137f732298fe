package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/docbridge/internal/docir"
)

// Apply executes one op and returns the number of documents it inserted,
// changed or removed.
func (s *Store) Apply(ctx context.Context, op docir.Op) (int64, error) {
	ctx, cancel := s.call(ctx)
	defer cancel()

	coll := s.db.Collection(op.Target())
	n, err := apply(ctx, coll, op)
	if err != nil {
		return 0, fmt.Errorf("%s on %s: %w", op.Kind(), op.Target(), err)
	}
	return n, nil
}

func apply(ctx context.Context, coll *mongo.Collection, op docir.Op) (int64, error) {
	switch o := op.(type) {
	case *docir.Insert:
		if _, err := coll.InsertOne(ctx, o.Doc); err != nil {
			return 0, err
		}
		return 1, nil

	case *docir.Update:
		update := o.Update
		if stages, ok := update.([]bson.D); ok {
			update = mongo.Pipeline(stages)
		}
		return updated(updateFunc(coll, o.Multi)(ctx, nonNil(o.Filter), update, updateOptions(o)))

	case *docir.Delete:
		var (
			res *mongo.DeleteResult
			err error
		)
		if o.Multi {
			res, err = coll.DeleteMany(ctx, nonNil(o.Filter))
		} else {
			res, err = coll.DeleteOne(ctx, nonNil(o.Filter))
		}
		if err != nil {
			return 0, err
		}
		return res.DeletedCount, nil

	case *docir.PushInto:
		return updated(coll.UpdateOne(ctx, o.ParentFilter, o.UpdateDoc()))

	case *docir.PullFrom:
		return updated(coll.UpdateMany(ctx, nonNil(o.ParentFilter), o.UpdateDoc()))

	default:
		return 0, fmt.Errorf("unsupported op %T", op)
	}
}

type updateCall func(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)

func updateFunc(coll *mongo.Collection, multi bool) updateCall {
	if multi {
		return coll.UpdateMany
	}
	return coll.UpdateOne
}

func updated(res *mongo.UpdateResult, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount + res.UpsertedCount, nil
}

// updateOptions carries the upsert flag and array filters of an update.
func updateOptions(o *docir.Update) *options.UpdateOptions {
	opts := options.Update().SetUpsert(o.Upsert)
	if len(o.ArrayFilters) > 0 {
		filters := make([]any, len(o.ArrayFilters))
		for i, f := range o.ArrayFilters {
			filters[i] = f
		}
		opts.SetArrayFilters(options.ArrayFilters{Filters: filters})
	}
	return opts
}
