package jrmp

import (
	"strings"

	"github.com/bft-labs/serially/pkg/jserial"
)

const maxChainDepth = 16

// Failure is one exception in a cause chain.
type Failure struct {
	Class   string
	Message string
}

func (f Failure) String() string {
	if f.Message == "" {
		return f.Class
	}
	return f.Class + ": " + f.Message
}

// RemoteError is an exception thrown on the remote side.
type RemoteError struct {
	Chain  []Failure
	Thrown any
}

func (e *RemoteError) Error() string {
	if len(e.Chain) == 0 {
		return "jrmp: remote exception"
	}
	return "jrmp: remote exception: " + FormatChain(e.Chain)
}

// Has reports whether any exception in the chain is of the named class.
func (e *RemoteError) Has(class string) bool {
	for _, f := range e.Chain {
		if f.Class == class {
			return true
		}
	}
	return false
}

// FormatChain renders a chain the way nested Java exception messages read.
func FormatChain(chain []Failure) string {
	parts := make([]string, len(chain))
	for i, f := range chain {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; nested exception is: ")
}

// causeFields are the fields through which JDK exceptions link their cause,
// most specific first.
var causeFields = []string{"detail", "ex", "target", "undeclaredThrowable", "cause"}

// Chain follows a serialized exception through its causes.
func Chain(thrown any) []Failure {
	var (
		chain []Failure
		seen  = make(map[*jserial.Object]bool)
	)
	o, _ := thrown.(*jserial.Object)
	for o != nil && !seen[o] && len(chain) < maxChainDepth {
		seen[o] = true
		f := Failure{Class: o.Class.Name}
		if msg, ok := o.Field("detailMessage"); ok {
			f.Message, _ = msg.(string)
		}
		chain = append(chain, f)

		var next *jserial.Object
		for _, name := range causeFields {
			v, ok := o.Field(name)
			if !ok {
				continue
			}
			if c, ok := v.(*jserial.Object); ok && c != o {
				next = c
				break
			}
		}
		o = next
	}
	return chain
}
