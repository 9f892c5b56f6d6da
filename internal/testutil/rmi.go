package testutil

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/bft-labs/serially/internal/mutf8"
	"github.com/bft-labs/serially/pkg/jserial"
)

// RMICall is a call received by an RMIServer.
type RMICall struct {
	// Addr is the server address the call arrived on.
	Addr *net.TCPAddr

	ObjNum int64
	Op     int32
	Hash   int64
	Args   []any
}

// RMIHandler answers a call with a return value or, when exceptional is
// set, a thrown exception.
type RMIHandler func(call RMICall) (exceptional bool, value any)

// RMIServer is a loopback JRMP server speaking the stream protocol.
type RMIServer struct {
	ln      net.Listener
	handler RMIHandler

	mu    sync.Mutex
	calls []RMICall
	wg    sync.WaitGroup
}

// StartRMIServer listens on a loopback port until the test ends.
func StartRMIServer(t testing.TB, handler RMIHandler) *RMIServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &RMIServer{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

// Host returns the listening host.
func (s *RMIServer) Host() string { return s.ln.Addr().(*net.TCPAddr).IP.String() }

// Port returns the listening port.
func (s *RMIServer) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Calls returns the calls received so far.
func (s *RMIServer) Calls() []RMICall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RMICall(nil), s.calls...)
}

func (s *RMIServer) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer c.Close()
			s.handle(c)
		}()
	}
}

func (s *RMIServer) handle(c net.Conn) {
	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)

	var hdr [7]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil || string(hdr[:4]) != "JRMI" {
		return
	}
	addr := c.RemoteAddr().(*net.TCPAddr)
	bw.WriteByte(0x4E)
	writeUTF(bw, addr.IP.String())
	binary.Write(bw, binary.BigEndian, int32(addr.Port))
	if bw.Flush() != nil {
		return
	}
	if _, err := readUTF(br); err != nil {
		return
	}
	if _, err := io.ReadFull(br, hdr[:4]); err != nil {
		return
	}

	call, err := readCall(br)
	if err != nil {
		return
	}
	call.Addr = c.LocalAddr().(*net.TCPAddr)
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	exceptional, value := s.handler(call)
	bw.WriteByte(0x51)
	enc := jserial.NewEncoder(bw, jserial.WithClassAnnotations())
	enc.WriteHeader()
	if exceptional {
		enc.WriteByte(2)
	} else {
		enc.WriteByte(1)
	}
	enc.WriteInt(0)
	enc.WriteLong(0)
	enc.WriteShort(0)
	enc.WriteObject(value)
	if enc.Flush() == nil {
		bw.Flush()
	}
}

func readCall(br *bufio.Reader) (RMICall, error) {
	var call RMICall
	msg, err := br.ReadByte()
	if err != nil {
		return call, err
	}
	if msg != 0x50 {
		return call, errors.New("not a call")
	}
	dec := jserial.NewDecoder(br)
	if err := dec.ReadHeader(); err != nil {
		return call, err
	}
	if call.ObjNum, err = dec.ReadLong(); err != nil {
		return call, err
	}
	// UID of the object's space
	if _, err := dec.ReadInt(); err != nil {
		return call, err
	}
	if _, err := dec.ReadLong(); err != nil {
		return call, err
	}
	if _, err := dec.ReadShort(); err != nil {
		return call, err
	}
	if call.Op, err = dec.ReadInt(); err != nil {
		return call, err
	}
	if call.Hash, err = dec.ReadLong(); err != nil {
		return call, err
	}
	// Registry.list is the only call without an argument.
	if call.ObjNum == 0 && call.Op == 1 {
		return call, nil
	}
	arg, err := dec.ReadObject()
	if err != nil {
		return call, err
	}
	call.Args = append(call.Args, arg)
	return call, nil
}

func readUTF(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return mutf8.Decode(b)
}

func writeUTF(w io.Writer, s string) {
	b := mutf8.Encode(s)
	binary.Write(w, binary.BigEndian, uint16(len(b)))
	w.Write(b)
}

var (
	remoteObjectDesc = &jserial.ClassDesc{
		Name:             "java.rmi.server.RemoteObject",
		SerialVersionUID: -3215090123894869218,
		Flags:            jserial.SCSerializable | jserial.SCWriteMethod,
	}
	remoteStubDesc = &jserial.ClassDesc{
		Name:             "java.rmi.server.RemoteStub",
		SerialVersionUID: -1585587260594494182,
		Flags:            jserial.SCSerializable,
		Super:            remoteObjectDesc,
	}
	throwableDesc = &jserial.ClassDesc{
		Name:             "java.lang.Throwable",
		SerialVersionUID: -3042686055658047285,
		Flags:            jserial.SCSerializable | jserial.SCWriteMethod,
		Fields: []jserial.FieldDesc{
			{Type: jserial.TypeObject, Name: "cause", ClassName: "Ljava/lang/Throwable;"},
			{Type: jserial.TypeObject, Name: "detailMessage", ClassName: "Ljava/lang/String;"},
		},
	}
	remoteExceptionDesc = &jserial.ClassDesc{
		Name:             "java.rmi.RemoteException",
		SerialVersionUID: -5148567311918794206,
		Flags:            jserial.SCSerializable,
		Fields: []jserial.FieldDesc{
			{Type: jserial.TypeObject, Name: "detail", ClassName: "Ljava/lang/Throwable;"},
		},
		Super: throwableDesc,
	}
)

// RMIRef is the live reference written into a stub.
type RMIRef struct {
	Host    string
	Port    int
	ObjNum  int64
	Ref2    bool
	Factory bool
}

func (r RMIRef) annotation() []any {
	var b bytes.Buffer
	if r.Ref2 || r.Factory {
		writeUTF(&b, "UnicastRef2")
		if r.Factory {
			b.WriteByte(1)
		} else {
			b.WriteByte(0)
		}
	} else {
		writeUTF(&b, "UnicastRef")
	}
	writeUTF(&b, r.Host)
	binary.Write(&b, binary.BigEndian, int32(r.Port))
	if !r.Factory {
		return []any{jserial.BlockData(b.Bytes()), jserial.BlockData(r.tail())}
	}
	return []any{jserial.BlockData(b.Bytes()), nil, jserial.BlockData(r.tail())}
}

func (r RMIRef) tail() []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, r.ObjNum)
	binary.Write(&b, binary.BigEndian, int32(7))
	binary.Write(&b, binary.BigEndian, int64(1700000000000))
	binary.Write(&b, binary.BigEndian, int16(-1))
	b.WriteByte(0)
	return b.Bytes()
}

// RMIStub builds a serialized stub of class holding ref.
func RMIStub(class string, ref RMIRef) *jserial.Object {
	desc := &jserial.ClassDesc{
		Name:             class,
		SerialVersionUID: 2,
		Flags:            jserial.SCSerializable,
		Super:            remoteStubDesc,
	}
	return &jserial.Object{
		Class: desc,
		Data:  []jserial.ClassData{{Annotation: ref.annotation()}, {}, {}},
	}
}

// RMIProxyStub builds a dynamic proxy stub implementing iface.
func RMIProxyStub(iface string, ref RMIRef) *jserial.Object {
	handler := &jserial.Object{
		Class: &jserial.ClassDesc{
			Name:             "java.rmi.server.RemoteObjectInvocationHandler",
			SerialVersionUID: 2,
			Flags:            jserial.SCSerializable,
			Super:            remoteObjectDesc,
		},
		Data: []jserial.ClassData{{Annotation: ref.annotation()}, {}},
	}
	proxy := &jserial.ClassDesc{
		Proxy:      true,
		Interfaces: []string{iface, "java.rmi.Remote"},
		Super: &jserial.ClassDesc{
			Name:             "java.lang.reflect.Proxy",
			SerialVersionUID: -2222568056686623797,
			Flags:            jserial.SCSerializable,
			Fields: []jserial.FieldDesc{
				{Type: jserial.TypeObject, Name: "h", ClassName: "Ljava/lang/reflect/InvocationHandler;"},
			},
		},
	}
	return &jserial.Object{
		Class: proxy,
		Data:  []jserial.ClassData{{Values: []any{handler}}, {}},
	}
}

// Exception builds a serialized exception. A nil cause leaves the cause
// pointing at the exception itself, as an uninitialized Throwable does.
func Exception(class, msg string, cause *jserial.Object) *jserial.Object {
	o := &jserial.Object{Class: &jserial.ClassDesc{
		Name:             class,
		SerialVersionUID: 1,
		Flags:            jserial.SCSerializable,
		Super:            throwableDesc,
	}}
	var c any = o
	if cause != nil {
		c = cause
	}
	o.Data = []jserial.ClassData{{Values: []any{c, msg}}, {}}
	return o
}

// RemoteException builds a java.rmi.RemoteException subclass whose detail
// field holds detail.
func RemoteException(class, msg string, detail *jserial.Object) *jserial.Object {
	o := &jserial.Object{Class: &jserial.ClassDesc{
		Name:             class,
		SerialVersionUID: 1,
		Flags:            jserial.SCSerializable,
		Super:            remoteExceptionDesc,
	}}
	var d any
	if detail != nil {
		d = detail
	}
	o.Data = []jserial.ClassData{{Values: []any{nil, msg}}, {Values: []any{d}}, {}}
	return o
}

// StringArray builds a serialized String[].
func StringArray(values ...string) *jserial.Array {
	a := &jserial.Array{Class: &jserial.ClassDesc{
		Name:             "[Ljava.lang.String;",
		SerialVersionUID: -5921575005990323385,
		Flags:            jserial.SCSerializable,
	}}
	for _, v := range values {
		a.Elements = append(a.Elements, v)
	}
	return a
}
