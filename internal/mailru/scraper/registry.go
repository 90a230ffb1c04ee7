package scraper

import (
	"context"
	"mailru-backend/internal/mailru/session"
)

// Operation is a method the scraper knows how to serve.
type Operation int

const (
	// OpREST forwards the call to the REST API unchanged.
	OpREST Operation = iota
	OpStreamGetByAuthor
	OpGroupsGet
	OpGroupsGetInfo
	OpGroupsJoin
)

var operationNames = map[Operation]string{
	OpStreamGetByAuthor: "stream.getByAuthor",
	OpGroupsGet:         "groups.get",
	OpGroupsGetInfo:     "groups.getInfo",
	OpGroupsJoin:        "groups.join",
}

var operations = func() map[string]Operation {
	out := make(map[string]Operation, len(operationNames))
	for op, name := range operationNames {
		out[name] = op
	}
	return out
}()

// Lookup returns the operation serving method, OpREST when none does.
func Lookup(method string) Operation {
	op, ok := operations[method]
	if !ok {
		return OpREST
	}
	return op
}

func (o Operation) String() string {
	name, ok := operationNames[o]
	if !ok {
		return "rest"
	}
	return name
}

type handlerFunc func(ctx context.Context, params session.Params) (any, error)

// handler returns the function serving op, nil for OpREST.
func (s *Scraper) handler(op Operation) handlerFunc {
	switch op {
	case OpStreamGetByAuthor:
		return s.streamGetByAuthor
	case OpGroupsGet:
		return s.groupsGet
	case OpGroupsGetInfo:
		return s.groupsGetInfo
	case OpGroupsJoin:
		return s.groupsJoin
	default:
		return nil
	}
}
