package domain

// Mode selects how probes are used.
type Mode string

const (
	// ModeLocal writes encoded probes to a file.
	ModeLocal Mode = "local"
	// ModeRemote sends probes to an RMI endpoint.
	ModeRemote Mode = "remote"
)

// OutcomeKind enumerates what can happen to a probe attempt.
type OutcomeKind int

const (
	NotInstantiable OutcomeKind = iota
	SerializationFailed
	SerializationSucceeded
	RemoteConnectionError
	RemoteTargetPatched
	RemoteClassNotFound
	RemoteUnmarshalAmbiguous
	RemoteOtherError
	RemoteNoError
)

var outcomeNames = [...]string{
	NotInstantiable:          "not-instantiable",
	SerializationFailed:      "serialization-failed",
	SerializationSucceeded:   "serialized",
	RemoteConnectionError:    "connection-error",
	RemoteTargetPatched:      "target-patched",
	RemoteClassNotFound:      "class-not-found",
	RemoteUnmarshalAmbiguous: "unmarshal-ambiguous",
	RemoteOtherError:         "other-error",
	RemoteNoError:            "no-error",
}

func (k OutcomeKind) String() string {
	if k >= 0 && int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return "unknown"
}

// Outcome is the result of one probe attempt. Payload is set for
// SerializationSucceeded; Detail carries the remote failure description.
type Outcome struct {
	Kind    OutcomeKind
	Payload []byte
	Detail  string
}

// Fatal reports whether the outcome ends the whole session.
func (o Outcome) Fatal() bool {
	return o.Kind == RemoteTargetPatched
}

// Verdict is the presence decision for an attempt.
type Verdict int

const (
	Absent Verdict = iota
	Present
	Inconclusive
)

func (v Verdict) String() string {
	switch v {
	case Present:
		return "present"
	case Inconclusive:
		return "inconclusive"
	default:
		return "absent"
	}
}

// Classify maps an outcome to a verdict. In local mode Present means the
// payload is recorded; it says nothing about any remote process.
func Classify(mode Mode, o Outcome) Verdict {
	if mode == ModeLocal {
		if o.Kind == SerializationSucceeded && len(o.Payload) > 0 {
			return Present
		}
		return Absent
	}
	switch o.Kind {
	case RemoteNoError, RemoteOtherError:
		return Present
	case RemoteConnectionError, RemoteUnmarshalAmbiguous, RemoteTargetPatched:
		return Inconclusive
	default:
		return Absent
	}
}

// Settles reports whether the outcome ends the search through an artifact's
// classes: a positive verdict or a fatal outcome. A class that is absent
// remotely does not settle its artifact, since the missing class may be a
// superclass from another jar.
func Settles(mode Mode, o Outcome) bool {
	return Classify(mode, o) == Present || o.Fatal()
}
