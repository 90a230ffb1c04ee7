// Package api maps dotted method names of the REST API onto signed session calls.
//
//	users, err := api.New(sess).Method("users").Sub("getInfo").Call(ctx, session.Params{"uids": "1,2"})
package api

import (
	"context"
	"fmt"
	"mailru-backend/internal/mailru/session"
	"strings"
)

// Requester is the part of a session the dispatcher needs.
type Requester interface {
	Request(ctx context.Context, params session.Params) (any, error)
}

// Caller is anything that can execute a dotted method, either the plain
// REST dispatcher or a scraper that overrides some of the methods.
type Caller interface {
	Call(ctx context.Context, method string, params session.Params) (any, error)
}

type API struct {
	session Requester
}

func New(s Requester) API {
	return API{session: s}
}

// Call sends method with params as a single signed request.
func (a API) Call(ctx context.Context, method string, params session.Params) (any, error) {
	if err := ValidateName(method); err != nil {
		return nil, err
	}
	p := params.Clone()
	p["method"] = method
	return a.session.Request(ctx, p)
}

// Method starts a method path at name.
func (a API) Method(name string) Method {
	return Method{caller: a, name: name}
}

// Method is a call descriptor, a dotted method path bound to the caller that executes it.
type Method struct {
	caller Caller
	name   string
}

// NewMethod binds a dotted path to an arbitrary caller.
func NewMethod(caller Caller, name string) Method {
	return Method{caller: caller, name: name}
}

// Sub appends a segment to the method path.
func (m Method) Sub(name string) Method {
	return Method{caller: m.caller, name: Join(m.name, name)}
}

func (m Method) Name() string {
	return m.name
}

func (m Method) Call(ctx context.Context, params session.Params) (any, error) {
	if params == nil {
		params = session.Params{}
	}
	return m.caller.Call(ctx, m.name, params)
}

// Join builds a dotted method path out of segments.
func Join(segments ...string) string {
	nonEmpty := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// ValidateName rejects method paths with empty segments.
func ValidateName(method string) error {
	if method == "" {
		return fmt.Errorf("mailru api: empty method name")
	}
	for _, seg := range strings.Split(method, ".") {
		if seg == "" {
			return fmt.Errorf("mailru api: malformed method name %q", method)
		}
	}
	return nil
}
