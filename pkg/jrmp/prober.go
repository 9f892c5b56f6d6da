package jrmp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies how a remote endpoint reacted to a probe.
type Kind int

const (
	NoError Kind = iota
	ConnectionError
	TargetPatched
	ClassNotFound
	UnmarshalAmbiguous
	OtherError
)

func (k Kind) String() string {
	switch k {
	case NoError:
		return "no-error"
	case ConnectionError:
		return "connection-error"
	case TargetPatched:
		return "target-patched"
	case ClassNotFound:
		return "class-not-found"
	case UnmarshalAmbiguous:
		return "unmarshal-ambiguous"
	case OtherError:
		return "other-error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is the classified outcome of one probe.
type Result struct {
	Kind  Kind
	Chain []Failure
	Err   error
}

// Detail renders the result for logs.
func (r Result) Detail() string {
	switch {
	case len(r.Chain) > 0:
		return FormatChain(r.Chain)
	case r.Err != nil:
		return r.Err.Error()
	}
	return ""
}

const classNotFound = "java.lang.ClassNotFoundException"

// Options configures a Prober.
type Options struct {
	// Timeout bounds each connection. Zero disables deadlines.
	Timeout time.Duration

	// UseRegistryHost dials the registry host instead of the host written
	// into the server stub, for targets behind NAT.
	UseRegistryHost bool
}

// Prober sends probe objects to a JMX connector server through its registry.
type Prober struct {
	client *Client
	opts   Options
}

// NewProber returns a prober configured by opts.
func NewProber(opts Options) *Prober {
	return &Prober{client: &Client{Timeout: opts.Timeout}, opts: opts}
}

// Probe looks up the first name bound in the registry at ep and passes arg to
// its newClient method. Whether the server could resolve arg's classes is
// read from the exception it answers with.
func (p *Prober) Probe(ctx context.Context, ep Endpoint, arg any) Result {
	names, err := p.client.List(ctx, ep)
	if err != nil {
		return connectionError(err)
	}
	if len(names) == 0 {
		return Result{Kind: ConnectionError, Err: fmt.Errorf("jrmp: no names bound in registry at %s", ep)}
	}

	stub, err := p.client.Lookup(ctx, ep, names[0])
	if err != nil {
		return connectionError(err)
	}
	if class := StubClass(stub); class != RMIServerStub {
		return Result{
			Kind: TargetPatched,
			Err:  fmt.Errorf("%s cannot be cast to %s", class, RMIServerStub),
		}
	}
	ref, err := StubRef(stub)
	if err != nil {
		return connectionError(err)
	}
	if ref.Factory {
		return connectionError(fmt.Errorf("%w: server stub uses a client socket factory", ErrNotSupported))
	}
	target := ref.Endpoint
	if p.opts.UseRegistryHost || target.Host == "" {
		target.Host = ep.Host
	}

	ret, err := p.client.Invoke(ctx, target, ref.ObjID, OpMethodHash, NewClientMethodHash, arg)
	return classify(ret, err)
}

func connectionError(err error) Result {
	r := Result{Kind: ConnectionError, Err: err}
	var re *RemoteError
	if errors.As(err, &re) {
		r.Chain = re.Chain
	}
	return r
}

func classify(ret *Return, err error) Result {
	var de *DecodeError
	switch {
	case err == nil:
	case errors.As(err, &de) && ret != nil && ret.Exceptional && !isNetError(de.Err):
		return Result{Kind: UnmarshalAmbiguous, Err: err}
	case errors.As(err, &de) && ret != nil && !ret.Exceptional && !isNetError(de.Err):
		// The call returned normally; only the client could not read the value.
		return Result{Kind: NoError}
	default:
		return Result{Kind: ConnectionError, Err: err}
	}

	if !ret.Exceptional {
		return Result{Kind: NoError}
	}
	re := ret.Err().(*RemoteError)
	r := Result{Chain: re.Chain, Err: re}
	switch {
	case chainHas(re.Chain, isConnectException):
		r.Kind = ConnectionError
	case chainHas(re.Chain, func(c string) bool { return c == classNotFound }):
		r.Kind = ClassNotFound
	case chainHas(re.Chain, isRMIException):
		r.Kind = UnmarshalAmbiguous
	default:
		r.Kind = OtherError
	}
	return r
}

func chainHas(chain []Failure, match func(class string) bool) bool {
	for _, f := range chain {
		if match(f.Class) {
			return true
		}
	}
	return false
}

func isConnectException(class string) bool {
	return strings.HasSuffix(class, ".ConnectException") || strings.HasSuffix(class, ".ConnectIOException")
}

func isRMIException(class string) bool {
	return strings.HasPrefix(class, "java.rmi.") && strings.HasSuffix(class, "Exception")
}
