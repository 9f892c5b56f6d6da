// Package jserial reads and writes the Java Object Serialization Stream
// Protocol (version 5), the format produced by java.io.ObjectOutputStream.
//
// The package models stream contents directly: class descriptors, objects
// with per-class data, arrays, enums, strings and block data. It does not
// map streams onto Go structs and knows nothing about Java classes beyond
// what the stream itself describes.
//
// An Encoder writes a stream. With WithClassAnnotations it annotates every
// class descriptor the way java.rmi.server's MarshalOutputStream does
// (a null codebase), which is what RMI peers expect. A Decoder reads either
// variant.
package jserial

// Stream header.
const (
	StreamMagic   uint16 = 0xACED
	StreamVersion uint16 = 5
)

// Type codes.
const (
	TCNull           byte = 0x70
	TCReference      byte = 0x71
	TCClassDesc      byte = 0x72
	TCObject         byte = 0x73
	TCString         byte = 0x74
	TCArray          byte = 0x75
	TCClass          byte = 0x76
	TCBlockData      byte = 0x77
	TCEndBlockData   byte = 0x78
	TCReset          byte = 0x79
	TCBlockDataLong  byte = 0x7A
	TCException      byte = 0x7B
	TCLongString     byte = 0x7C
	TCProxyClassDesc byte = 0x7D
	TCEnum           byte = 0x7E
)

// Class descriptor flags.
const (
	SCWriteMethod    byte = 0x01
	SCSerializable   byte = 0x02
	SCExternalizable byte = 0x04
	SCBlockData      byte = 0x08
	SCEnum           byte = 0x10
)

// BaseWireHandle is the first handle assigned in a stream.
const BaseWireHandle = 0x7E0000

// maxBlockSize is the largest block ObjectOutputStream emits.
const maxBlockSize = 1024

// EmptyEncodingLen is the length of a stream holding only a null reference:
// the four header bytes plus TC_NULL.
const EmptyEncodingLen = 5
