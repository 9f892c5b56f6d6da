package classpath

import (
	"errors"
	"fmt"

	"github.com/bft-labs/serially/pkg/classfile"
)

var (
	// ErrUnresolvedSupertype is returned when a superclass or interface of a
	// class is neither in a registered archive nor a platform type.
	ErrUnresolvedSupertype = errors.New("classpath: unresolved supertype")

	// ErrNotInstantiable is returned by Allocate for interfaces and abstract classes.
	ErrNotInstantiable = errors.New("classpath: type cannot be instantiated")

	// ErrCircularHierarchy is returned when a class is its own supertype.
	ErrCircularHierarchy = errors.New("classpath: circular type hierarchy")
)

// Kind tells where a resolved type came from.
type Kind int

const (
	// KindArchive types are defined by a class file in a registered archive.
	KindArchive Kind = iota
	// KindBuiltin types are platform types with a known shape.
	KindBuiltin
	// KindOpaque types are platform types whose layout is unknown.
	KindOpaque
)

// Type is a resolved class or interface with its supertypes linked.
type Type struct {
	Name       string
	Kind       Kind
	Class      *classfile.Class // set for KindArchive
	Super      *Type
	Interfaces []*Type

	builtin builtin
}

// IsInterface reports whether t is an interface.
func (t *Type) IsInterface() bool {
	switch t.Kind {
	case KindArchive:
		return t.Class.IsInterface()
	case KindBuiltin:
		return t.builtin.iface
	}
	return false
}

// IsAbstract reports whether t is an abstract class or an interface.
func (t *Type) IsAbstract() bool {
	switch t.Kind {
	case KindArchive:
		return t.Class.IsAbstract() || t.Class.IsInterface()
	case KindBuiltin:
		return t.builtin.abstract || t.builtin.iface
	}
	return false
}

// IsEnum reports whether t is an enum type or an enum constant body.
func (t *Type) IsEnum() bool {
	for s := t; s != nil; s = s.Super {
		if s.Name == "java.lang.Enum" {
			return true
		}
		if s.Kind == KindArchive && s.Class.IsEnum() {
			return true
		}
	}
	return false
}

// Implements reports whether t is, extends or implements the named type.
func (t *Type) Implements(name string) bool {
	if t == nil {
		return false
	}
	if t.Name == name {
		return true
	}
	for _, i := range t.Interfaces {
		if i.Implements(name) {
			return true
		}
	}
	return t.Super.Implements(name)
}

// IsSerializable reports whether t implements java.io.Serializable.
func (t *Type) IsSerializable() bool { return t.Implements("java.io.Serializable") }

// IsExternalizable reports whether t implements java.io.Externalizable.
func (t *Type) IsExternalizable() bool { return t.Implements("java.io.Externalizable") }

// SerialVersionUID returns the stream identifier of t. It is unknown for
// opaque types and for builtins without a recorded value.
func (t *Type) SerialVersionUID() (int64, bool) {
	switch t.Kind {
	case KindArchive:
		return t.Class.SerialVersionUID(), true
	case KindBuiltin:
		return t.builtin.serialUID, t.builtin.noSerialData
	}
	return 0, false
}

// HasKnownSerialForm reports whether t's serialized class data can be
// produced: archive classes always, builtins when they carry no serial
// data, opaque types never.
func (t *Type) HasKnownSerialForm() bool {
	switch t.Kind {
	case KindArchive:
		return true
	case KindBuiltin:
		return t.builtin.noSerialData || !t.IsSerializable()
	}
	return false
}

// DeclaresWriteObject reports whether t declares
// private void writeObject(java.io.ObjectOutputStream).
func (t *Type) DeclaresWriteObject() bool {
	if t.Kind != KindArchive {
		return false
	}
	m, ok := t.Class.Method("writeObject", "(Ljava/io/ObjectOutputStream;)V")
	return ok && m.Is(classfile.AccPrivate) && !m.Is(classfile.AccStatic)
}

// Resolve links name and its supertypes. name itself must be defined by a
// registered archive; supertypes may also be platform types.
func (r *Registry) Resolve(name string) (*Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return r.resolveLocked(name, map[string]bool{})
}

func (r *Registry) resolveLocked(name string, visiting map[string]bool) (*Type, error) {
	if t, ok := r.types[name]; ok {
		return t, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("%w: %s", ErrCircularHierarchy, name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	var (
		t          *Type
		superName  string
		interfaces []string
	)
	if _, ok := r.classes[name]; ok {
		c, err := r.classFileLocked(name)
		if err != nil {
			return nil, err
		}
		t = &Type{Name: name, Kind: KindArchive, Class: c}
		superName, interfaces = c.SuperName, c.Interfaces
	} else if b, ok := builtins[name]; ok {
		t = &Type{Name: name, Kind: KindBuiltin, builtin: b}
		superName, interfaces = b.super, b.interfaces
	} else if IsPlatformName(name) {
		t = &Type{Name: name, Kind: KindOpaque}
		r.types[name] = t
		return t, nil
	} else {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}

	if superName != "" {
		s, err := r.resolveLocked(superName, visiting)
		if err != nil {
			return nil, supertypeError(name, superName, err)
		}
		t.Super = s
	}
	for _, iname := range interfaces {
		i, err := r.resolveLocked(iname, visiting)
		if err != nil {
			return nil, supertypeError(name, iname, err)
		}
		t.Interfaces = append(t.Interfaces, i)
	}
	r.types[name] = t
	return t, nil
}

func supertypeError(name, super string, err error) error {
	if errors.Is(err, ErrClassNotFound) {
		return fmt.Errorf("%w: %s needs %s", ErrUnresolvedSupertype, name, super)
	}
	return err
}

// Instance is a zero-initialized object of an archive class: every instance
// field holds its type's zero value and no constructor or initializer has run.
type Instance struct {
	Type *Type
}

// Name returns the class name of the instance.
func (i *Instance) Name() string { return i.Type.Name }

// Allocate resolves name and returns a zero-initialized instance of it.
func (r *Registry) Allocate(name string) (*Instance, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if t.IsAbstract() {
		return nil, fmt.Errorf("%w: %s", ErrNotInstantiable, name)
	}
	return &Instance{Type: t}, nil
}
