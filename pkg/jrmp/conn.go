package jrmp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bft-labs/serially/internal/mutf8"
	"github.com/bft-labs/serially/pkg/jserial"
)

var (
	// ErrProtocol is returned when the peer does not speak JRMP.
	ErrProtocol = errors.New("jrmp: protocol error")

	// ErrNotSupported is returned for stream protocol variants this client
	// does not implement.
	ErrNotSupported = errors.New("jrmp: not supported")
)

// DefaultTimeout is the per-connection deadline used by the command line.
const DefaultTimeout = 10 * time.Second

// Conn is a JRMP stream protocol connection.
type Conn struct {
	c       net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	timeout time.Duration

	// Suggested is the address the server says it sees this client as.
	Suggested Endpoint
}

// Dial connects to ep and performs the stream protocol handshake. A zero
// timeout disables deadlines.
func Dial(ctx context.Context, ep Endpoint, timeout time.Duration) (*Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, err
	}
	conn := &Conn{
		c:       c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
		timeout: timeout,
	}
	if err := conn.handshake(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.c.Close()
}

func (c *Conn) arm(ctx context.Context) (stop func() bool) {
	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	c.c.SetDeadline(deadline)
	return context.AfterFunc(ctx, func() {
		c.c.SetDeadline(time.Unix(1, 0))
	})
}

func (c *Conn) handshake(ctx context.Context) error {
	stop := c.arm(ctx)
	defer stop()

	var hdr [7]byte
	binary.BigEndian.PutUint32(hdr[0:4], magic)
	binary.BigEndian.PutUint16(hdr[4:6], version)
	hdr[6] = streamProtocol
	if _, err := c.bw.Write(hdr[:]); err != nil {
		return err
	}
	if err := c.bw.Flush(); err != nil {
		return err
	}

	ack, err := c.br.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: reading protocol ack: %v", ErrProtocol, err)
	}
	switch ack {
	case protocolAck:
	case protocolNack:
		return fmt.Errorf("%w: stream protocol refused", ErrNotSupported)
	default:
		return fmt.Errorf("%w: unexpected ack 0x%02x", ErrProtocol, ack)
	}
	host, err := readUTF(c.br)
	if err != nil {
		return fmt.Errorf("%w: reading suggested endpoint: %v", ErrProtocol, err)
	}
	var port [4]byte
	if _, err := io.ReadFull(c.br, port[:]); err != nil {
		return fmt.Errorf("%w: reading suggested endpoint: %v", ErrProtocol, err)
	}
	c.Suggested = Endpoint{Host: host, Port: int(int32(binary.BigEndian.Uint32(port[:])))}

	if err := writeUTF(c.bw, host); err != nil {
		return err
	}
	if _, err := c.bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	return c.bw.Flush()
}

// Return is the outcome of a call. Value is the returned object, or the
// thrown exception when Exceptional is set.
type Return struct {
	Exceptional bool
	Value       any
}

// Err returns a *RemoteError for exceptional returns and nil otherwise.
func (r *Return) Err() error {
	if !r.Exceptional {
		return nil
	}
	return &RemoteError{Chain: Chain(r.Value), Thrown: r.Value}
}

// Call invokes op on the remote object id and reads its return. args are
// written as objects in RMI marshal form. Methods returning void are not
// supported.
func (c *Conn) Call(ctx context.Context, id ObjID, op int32, hash int64, args ...any) (*Return, error) {
	stop := c.arm(ctx)
	defer stop()

	if err := c.bw.WriteByte(msgCall); err != nil {
		return nil, err
	}
	enc := jserial.NewEncoder(c.bw, jserial.WithClassAnnotations())
	enc.WriteHeader()
	enc.WriteLong(id.ObjNum)
	enc.WriteInt(id.Space.Unique)
	enc.WriteLong(id.Space.Time)
	enc.WriteShort(id.Space.Count)
	enc.WriteInt(op)
	enc.WriteLong(hash)
	for _, arg := range args {
		if err := enc.WriteObject(arg); err != nil {
			return nil, fmt.Errorf("marshal argument: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	if err := c.bw.Flush(); err != nil {
		return nil, err
	}
	return c.readReturn()
}

func (c *Conn) readReturn() (*Return, error) {
	msg, err := c.br.ReadByte()
	if err != nil {
		return nil, err
	}
	if msg != msgReturnData {
		return nil, fmt.Errorf("%w: unexpected message 0x%02x", ErrProtocol, msg)
	}

	dec := jserial.NewDecoder(c.br)
	if err := dec.ReadHeader(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	kind, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	// The acknowledgement UID is only needed for distributed GC.
	if _, err := dec.ReadInt(); err != nil {
		return nil, err
	}
	if _, err := dec.ReadLong(); err != nil {
		return nil, err
	}
	if _, err := dec.ReadShort(); err != nil {
		return nil, err
	}

	ret := &Return{}
	switch kind {
	case normalReturn:
	case exceptionalReturn:
		ret.Exceptional = true
	default:
		return nil, fmt.Errorf("%w: return type %d", ErrProtocol, kind)
	}

	v, err := dec.ReadObject()
	if err != nil {
		return ret, &DecodeError{Err: err}
	}
	ret.Value = v
	return ret, nil
}

// DecodeError is returned when a return value cannot be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "jrmp: decoding return value: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func readUTF(r io.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	b := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return mutf8.Decode(b)
}

func writeUTF(w io.Writer, s string) error {
	b := mutf8.Encode(s)
	if len(b) > 0xFFFF {
		return fmt.Errorf("%w: host name too long", ErrProtocol)
	}
	if _, err := w.Write(binary.BigEndian.AppendUint16(nil, uint16(len(b)))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// isNetError reports whether err came from the connection rather than from
// the content of the stream.
func isNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
