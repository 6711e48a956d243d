package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

type methodType struct {
	method    reflect.Method
	withCtx   bool
	ArgType   reflect.Type
	ReplyType reflect.Type
}

// service is a receiver whose exported methods are exposed as "<name>.<snake_method>".
type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService scans rcvr for methods shaped like
//
//	func (r *T) Method(args *A, reply *R) error
//	func (r *T) Method(ctx context.Context, args *A, reply *R) error
//
// An empty name uses the lower-cased type name as the namespace.
func newService(rcvr any, name string) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = strings.ToLower(typ.Elem().Name())
	}
	svc := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: type %s has no exported methods of suitable shape", typ.Elem().Name())
	}
	return svc, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		m := s.typ.Method(i)
		mt := m.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}
		// In(0) is the receiver.
		first := 1
		withCtx := false
		switch mt.NumIn() {
		case 3:
		case 4:
			if mt.In(1) != contextType {
				continue
			}
			first, withCtx = 2, true
		default:
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}
		s.method[snakeCase(m.Name)] = &methodType{
			method:    m,
			withCtx:   withCtx,
			ArgType:   mt.In(first).Elem(),
			ReplyType: mt.In(first + 1).Elem(),
		}
	}
}

// names returns the fully qualified method names served by s.
func (s *service) names() []string {
	out := make([]string, 0, len(s.method))
	for m := range s.method {
		out = append(out, s.name+"."+m)
	}
	return out
}

// call decodes params into a fresh args value, invokes the method and returns the reply value.
// A panicking method fails only its own request.
func (s *service) call(ctx context.Context, mType *methodType, params map[string]any) (reply any, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = nil, fmt.Errorf("internal error in %s.%s: %v", s.name, snakeCase(mType.method.Name), r)
		}
	}()

	argv := reflect.New(mType.ArgType)
	replyv := reflect.New(mType.ReplyType)

	if len(params) > 0 {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		if err := json.Unmarshal(raw, argv.Interface()); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	in := []reflect.Value{s.rcvr}
	if mType.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, argv, replyv)
	results := mType.method.Func.Call(in)
	if errv := results[0]; !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	return replyv.Interface(), nil
}

// snakeCase converts an exported Go identifier to the wire form: ListApps → list_apps, HTTPPing → http_ping.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
