// Package jrmp is a minimal Java RMI (JRMP) client: the stream protocol
// handshake, single remote calls, the registry's list and lookup operations
// and extraction of live references from stubs.
//
// Every call uses its own TCP connection. Arguments are written with
// jserial in RMI marshal form and returns are decoded with jserial, so no
// Java class is needed on this side of the wire.
package jrmp

import (
	"net"
	"strconv"
)

// Transport header and message codes.
const (
	magic          uint32 = 0x4A524D49 // "JRMI"
	version        uint16 = 2
	streamProtocol byte   = 0x4B
	protocolAck    byte   = 0x4E
	protocolNack   byte   = 0x4F

	msgCall       byte = 0x50
	msgReturnData byte = 0x51

	normalReturn      byte = 1
	exceptionalReturn byte = 2
)

// Registry operations of the java.rmi.registry.Registry stub protocol.
const (
	RegistryInterfaceHash int64 = 4905912898345647071

	OpList   int32 = 1
	OpLookup int32 = 2
)

// RMIServerStub is the stub class a JMX connector server binds.
const RMIServerStub = "javax.management.remote.rmi.RMIServerImpl_Stub"

// NewClientMethodHash identifies RMIServer.newClient(Object).
const NewClientMethodHash int64 = -1089742558549201240

// OpMethodHash is the operation number used by calls that identify the
// method by hash.
const OpMethodHash int32 = -1

// UID identifies the VM that exported an object.
type UID struct {
	Unique int32
	Time   int64
	Count  int16
}

// ObjID identifies an exported remote object. The zero ObjID is the registry.
type ObjID struct {
	ObjNum int64
	Space  UID
}

// RegistryID is the well-known object ID of a registry.
var RegistryID = ObjID{}

// Endpoint is a TCP address of an RMI peer.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
