package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type constant struct {
	tag   uint8
	index uint16
	str   string
	value any
}

// constantPool is indexed from 1; slot 0 and the slot after a long or
// double are unused.
type constantPool []constant

func (p *parser) readConstantPool() error {
	count, err := p.u2()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: empty constant pool", ErrMalformed)
	}
	cp := make(constantPool, count)
	for i := 1; i < int(count); i++ {
		tag, err := p.u1()
		if err != nil {
			return err
		}
		c := constant{tag: tag}
		switch tag {
		case tagUtf8:
			n, err := p.u2()
			if err != nil {
				return err
			}
			b, err := p.bytes(int(n))
			if err != nil {
				return err
			}
			if c.str, err = decodeUTF8(b); err != nil {
				return err
			}
		case tagInteger:
			v, err := p.u4()
			if err != nil {
				return err
			}
			c.value = int32(v)
		case tagFloat:
			v, err := p.u4()
			if err != nil {
				return err
			}
			c.value = math.Float32frombits(v)
		case tagLong, tagDouble:
			b, err := p.bytes(8)
			if err != nil {
				return err
			}
			v := binary.BigEndian.Uint64(b)
			if tag == tagLong {
				c.value = int64(v)
			} else {
				c.value = math.Float64frombits(v)
			}
			cp[i] = c
			i++
			continue
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			if c.index, err = p.u2(); err != nil {
				return err
			}
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType,
			tagDynamic, tagInvokeDynamic:
			if _, err := p.bytes(4); err != nil {
				return err
			}
		case tagMethodHandle:
			if _, err := p.bytes(3); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: constant pool tag %d at index %d", ErrMalformed, tag, i)
		}
		cp[i] = c
	}
	p.cp = cp
	return nil
}

func (cp constantPool) entry(idx uint16, tag uint8) (constant, error) {
	if idx == 0 || int(idx) >= len(cp) || cp[idx].tag != tag {
		return constant{}, fmt.Errorf("%w: constant #%d is not tag %d", ErrMalformed, idx, tag)
	}
	return cp[idx], nil
}

func (cp constantPool) utf8(idx uint16) (string, error) {
	c, err := cp.entry(idx, tagUtf8)
	if err != nil {
		return "", err
	}
	return c.str, nil
}

func (cp constantPool) className(idx uint16) (string, error) {
	c, err := cp.entry(idx, tagClass)
	if err != nil {
		return "", err
	}
	name, err := cp.utf8(c.index)
	if err != nil {
		return "", err
	}
	return binaryName(name), nil
}

// constant resolves a ConstantValue attribute target.
func (cp constantPool) constant(idx uint16) (any, error) {
	if idx == 0 || int(idx) >= len(cp) {
		return nil, fmt.Errorf("%w: constant #%d out of range", ErrMalformed, idx)
	}
	c := cp[idx]
	switch c.tag {
	case tagInteger, tagFloat, tagLong, tagDouble:
		return c.value, nil
	case tagString:
		return cp.utf8(c.index)
	default:
		return nil, fmt.Errorf("%w: constant #%d has tag %d", ErrMalformed, idx, c.tag)
	}
}
