package probe

import (
	"errors"
	"fmt"

	"github.com/bft-labs/serially/pkg/classfile"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/jserial"
	"github.com/bft-labs/serially/pkg/log"
)

var (
	// ErrNotSerializable is returned for classes that do not implement java.io.Serializable.
	ErrNotSerializable = errors.New("probe: class is not serializable")

	// ErrExternalizable is returned for classes whose stream form is written by writeExternal.
	ErrExternalizable = errors.New("probe: externalizable class")

	// ErrEnum is returned for enum types, whose constants cannot be allocated.
	ErrEnum = errors.New("probe: enum type")

	// ErrUnknownLayout is returned when a class in the hierarchy has a serial
	// form that cannot be derived from class files.
	ErrUnknownLayout = errors.New("probe: unknown serial layout")
)

const (
	writeObjectDesc    = "(Ljava/io/ObjectOutputStream;)V"
	persistentFieldsTy = "[Ljava/io/ObjectStreamField;"
)

// Describe returns the stream object for inst: one class descriptor per
// serializable class in its hierarchy, every field at its zero value.
func Describe(inst *classpath.Instance) (*jserial.Object, error) {
	if inst == nil || inst.Type == nil {
		return nil, fmt.Errorf("%w: nil instance", ErrNotSerializable)
	}
	t := inst.Type
	switch {
	case !t.IsSerializable():
		return nil, fmt.Errorf("%w: %s", ErrNotSerializable, t.Name)
	case t.IsExternalizable():
		return nil, fmt.Errorf("%w: %s", ErrExternalizable, t.Name)
	case t.IsEnum():
		return nil, fmt.Errorf("%w: %s", ErrEnum, t.Name)
	}

	var leaf, below *jserial.ClassDesc
	for s := t; s != nil; s = s.Super {
		if s.Kind == classpath.KindOpaque {
			return nil, fmt.Errorf("%w: %s extends %s", ErrUnknownLayout, t.Name, s.Name)
		}
		if !s.IsSerializable() {
			continue
		}
		desc, err := classDesc(s)
		if err != nil {
			return nil, err
		}
		if below == nil {
			leaf = desc
		} else {
			below.Super = desc
		}
		below = desc
	}
	return &jserial.Object{Class: leaf}, nil
}

func classDesc(t *classpath.Type) (*jserial.ClassDesc, error) {
	if !t.HasKnownSerialForm() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayout, t.Name)
	}
	suid, _ := t.SerialVersionUID()
	desc := &jserial.ClassDesc{
		Name:             t.Name,
		SerialVersionUID: suid,
		Flags:            jserial.SCSerializable,
	}
	if t.Kind != classpath.KindArchive {
		return desc, nil
	}
	if t.DeclaresWriteObject() {
		desc.Flags |= jserial.SCWriteMethod
	}
	for _, f := range t.Class.Fields {
		if f.Name == "serialPersistentFields" && f.Descriptor == persistentFieldsTy &&
			f.Is(classfile.AccPrivate|classfile.AccStatic|classfile.AccFinal) {
			return nil, fmt.Errorf("%w: %s declares serialPersistentFields", ErrUnknownLayout, t.Name)
		}
		if f.Is(classfile.AccStatic) || f.Is(classfile.AccTransient) {
			continue
		}
		if f.Descriptor == "" {
			return nil, fmt.Errorf("%w: field %s.%s has no type", ErrUnknownLayout, t.Name, f.Name)
		}
		fd := jserial.FieldDesc{Type: f.Descriptor[0], Name: f.Name}
		if !fd.IsPrimitive() {
			fd.ClassName = f.Descriptor
		}
		desc.Fields = append(desc.Fields, fd)
	}
	jserial.SortFields(desc.Fields)
	return desc, nil
}

// Serializer encodes probe instances.
type Serializer struct {
	opts   []jserial.Option
	logger log.Logger
}

// NewSerializer returns a serializer that encodes with opts.
func NewSerializer(logger log.Logger, opts ...jserial.Option) *Serializer {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Serializer{opts: opts, logger: logger}
}

// Serialize returns the stream encoding of inst, or nil when the instance
// cannot be encoded or encodes to nothing but an empty stream.
func (s *Serializer) Serialize(inst *classpath.Instance) []byte {
	var v any
	if inst != nil {
		obj, err := Describe(inst)
		if err != nil {
			s.logger.Debug("Couldn't serialize class", log.String("class", inst.Name()), log.Err(err))
			return nil
		}
		v = obj
	}
	b, err := jserial.Marshal(v, s.opts...)
	if err != nil {
		s.logger.Debug("Serialization failed", log.Err(err))
		return nil
	}
	if len(b) == jserial.EmptyEncodingLen {
		return nil
	}
	return b
}
