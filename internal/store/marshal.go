package store

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
)

// marshalOp converts an op to its journal payload and content hash.
// The payload is canonical Extended JSON so a replayed op writes the
// same BSON types the original did.
func marshalOp(op docir.Op) (payload, hash string, err error) {
	data, err := docir.EncodeOp(op)
	if err != nil {
		return "", "", fmt.Errorf("marshal op: %w", err)
	}
	hash, err = ir.ContentID(ir.DomainMutationOp, op.BSON())
	if err != nil {
		return "", "", fmt.Errorf("marshal op: %w", err)
	}
	return string(data), hash, nil
}

// unmarshalOp parses a journal payload.
func unmarshalOp(payload string) (docir.Op, error) {
	op, err := docir.DecodeOp([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("unmarshal op: %w", err)
	}
	return op, nil
}

// statementHash identifies the whole mutation: statement kind, table and
// every op in order.
func statementHash(m *docir.Mutation) (string, error) {
	ops := bson.A{}
	for _, op := range m.All() {
		ops = append(ops, op.BSON())
	}
	return ir.ContentID(ir.DomainStatement, bson.D{
		{Key: "statement", Value: m.Statement},
		{Key: "table", Value: m.Table},
		{Key: "ops", Value: ops},
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
