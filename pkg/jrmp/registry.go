package jrmp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/serially/pkg/jserial"
)

const remoteObjectClass = "java.rmi.server.RemoteObject"

// ErrNoReference is returned when a value is not a stub carrying a live reference.
var ErrNoReference = errors.New("jrmp: value carries no remote reference")

// Client issues calls on fresh connections.
type Client struct {
	// Timeout bounds each connection. Zero disables deadlines.
	Timeout time.Duration
}

// Invoke dials ep, performs one call and closes the connection.
func (c *Client) Invoke(ctx context.Context, ep Endpoint, id ObjID, op int32, hash int64, args ...any) (*Return, error) {
	conn, err := Dial(ctx, ep, c.Timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Call(ctx, id, op, hash, args...)
}

// List returns the names bound in the registry at ep.
func (c *Client) List(ctx context.Context, ep Endpoint) ([]string, error) {
	ret, err := c.Invoke(ctx, ep, RegistryID, OpList, RegistryInterfaceHash)
	if err != nil {
		return nil, err
	}
	if err := ret.Err(); err != nil {
		return nil, err
	}
	if ret.Value == nil {
		return nil, nil
	}
	arr, ok := ret.Value.(*jserial.Array)
	if !ok {
		return nil, fmt.Errorf("%w: list returned %T", ErrProtocol, ret.Value)
	}
	names := make([]string, 0, len(arr.Elements))
	for _, e := range arr.Elements {
		if s, ok := e.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

// Lookup returns the stub bound to name in the registry at ep.
func (c *Client) Lookup(ctx context.Context, ep Endpoint, name string) (any, error) {
	ret, err := c.Invoke(ctx, ep, RegistryID, OpLookup, RegistryInterfaceHash, name)
	if err != nil {
		return nil, err
	}
	if err := ret.Err(); err != nil {
		return nil, err
	}
	return ret.Value, nil
}

// Ref is the live reference held by a stub.
type Ref struct {
	Endpoint Endpoint
	ObjID    ObjID

	// Factory is set when the reference names a client socket factory.
	Factory bool
}

// StubClass returns the class name of a stub, or the first proxied
// interface for dynamic proxies.
func StubClass(v any) string {
	o, ok := v.(*jserial.Object)
	if !ok || o.Class == nil {
		return fmt.Sprintf("%T", v)
	}
	if o.Class.Proxy {
		if len(o.Class.Interfaces) > 0 {
			return "proxy implementing " + o.Class.Interfaces[0]
		}
		return "proxy"
	}
	return o.Class.Name
}

// StubRef extracts the live reference written by RemoteObject.writeObject.
// Dynamic proxies are followed through their invocation handler.
func StubRef(v any) (Ref, error) {
	o, ok := v.(*jserial.Object)
	if !ok || o.Class == nil {
		return Ref{}, ErrNoReference
	}
	if o.Class.Proxy {
		h, _ := o.Field("h")
		if o, ok = h.(*jserial.Object); !ok || o.Class == nil {
			return Ref{}, ErrNoReference
		}
	}
	data, ok := o.ClassData(remoteObjectClass)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s is not a remote object", ErrNoReference, o.Class.Name)
	}
	var buf bytes.Buffer
	for _, item := range data.Annotation {
		if b, ok := item.(jserial.BlockData); ok {
			buf.Write(b)
		}
	}
	return parseRef(&buf)
}

func parseRef(r io.Reader) (Ref, error) {
	var ref Ref
	kind, err := readUTF(r)
	if err != nil {
		return ref, fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	switch kind {
	case "UnicastRef":
	case "UnicastRef2":
		var format [1]byte
		if _, err := io.ReadFull(r, format[:]); err != nil {
			return ref, fmt.Errorf("%w: %v", ErrNoReference, err)
		}
		ref.Factory = format[0] == 1
	case "":
		return ref, fmt.Errorf("%w: null reference", ErrNoReference)
	default:
		return ref, fmt.Errorf("%w: reference type %s", ErrNotSupported, kind)
	}

	if ref.Endpoint.Host, err = readUTF(r); err != nil {
		return ref, fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	var fixed struct {
		Port   int32
		ObjNum int64
		Unique int32
		Time   int64
		Count  int16
	}
	if err := binary.Read(r, binary.BigEndian, &fixed); err != nil {
		return ref, fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	ref.Endpoint.Port = int(fixed.Port)
	ref.ObjID = ObjID{
		ObjNum: fixed.ObjNum,
		Space:  UID{Unique: fixed.Unique, Time: fixed.Time, Count: fixed.Count},
	}
	return ref, nil
}
