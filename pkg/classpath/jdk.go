package classpath

import "strings"

// builtin describes a platform type that is not shipped in any artifact.
type builtin struct {
	super        string
	interfaces   []string
	iface        bool
	abstract     bool
	serialUID    int64
	noSerialData bool // serializable with no serial fields and no custom write method
}

// builtins are the platform types whose serialization shape is known.
// Other platform types resolve to opaque placeholders.
var builtins = map[string]builtin{
	"java.lang.Object":       {},
	"java.io.Serializable":   {iface: true},
	"java.io.Externalizable": {iface: true, interfaces: []string{"java.io.Serializable"}},
	"java.lang.Cloneable":    {iface: true},
	"java.lang.Comparable":   {iface: true},
	"java.lang.Runnable":     {iface: true},
	"java.lang.Iterable":     {iface: true},

	"java.util.Collection":    {iface: true, interfaces: []string{"java.lang.Iterable"}},
	"java.util.List":          {iface: true, interfaces: []string{"java.util.Collection"}},
	"java.util.Set":           {iface: true, interfaces: []string{"java.util.Collection"}},
	"java.util.Map":           {iface: true},
	"java.util.EventListener": {iface: true},

	"java.lang.reflect.InvocationHandler": {iface: true},

	"java.security.Key":        {iface: true, interfaces: []string{"java.io.Serializable"}},
	"java.security.PublicKey":  {iface: true, interfaces: []string{"java.security.Key"}},
	"java.security.PrivateKey": {iface: true, interfaces: []string{"java.security.Key"}},
	"javax.crypto.SecretKey":   {iface: true, interfaces: []string{"java.security.Key"}},

	"java.lang.Number": {
		super: "java.lang.Object", abstract: true,
		interfaces: []string{"java.io.Serializable"},
		serialUID:  -8742448824652078965, noSerialData: true,
	},
	"java.util.EventObject": {
		super:      "java.lang.Object",
		interfaces: []string{"java.io.Serializable"},
		serialUID:  5516075349620653480, noSerialData: true,
	},
	"java.lang.Enum": {
		super: "java.lang.Object", abstract: true,
		interfaces: []string{"java.lang.Comparable", "java.io.Serializable"},
	},

	"java.util.AbstractCollection":     {super: "java.lang.Object", abstract: true, interfaces: []string{"java.util.Collection"}},
	"java.util.AbstractList":           {super: "java.util.AbstractCollection", abstract: true, interfaces: []string{"java.util.List"}},
	"java.util.AbstractSequentialList": {super: "java.util.AbstractList", abstract: true},
	"java.util.AbstractSet":            {super: "java.util.AbstractCollection", abstract: true, interfaces: []string{"java.util.Set"}},
	"java.util.AbstractQueue":          {super: "java.util.AbstractCollection", abstract: true},
	"java.util.AbstractMap":            {super: "java.lang.Object", abstract: true, interfaces: []string{"java.util.Map"}},
	"java.util.Dictionary":             {super: "java.lang.Object", abstract: true},
	"java.util.Observable":             {super: "java.lang.Object"},
	"java.util.TimerTask":              {super: "java.lang.Object", abstract: true, interfaces: []string{"java.lang.Runnable"}},
	"java.io.InputStream":              {super: "java.lang.Object", abstract: true},
	"java.io.OutputStream":             {super: "java.lang.Object", abstract: true},
	"java.io.Reader":                   {super: "java.lang.Object", abstract: true},
	"java.io.Writer":                   {super: "java.lang.Object", abstract: true},
	"java.lang.Thread":                 {super: "java.lang.Object", interfaces: []string{"java.lang.Runnable"}},
	"java.lang.ClassLoader":            {super: "java.lang.Object", abstract: true},
}

// IsPlatformName reports whether name belongs to a package the JDK owns.
func IsPlatformName(name string) bool {
	for _, prefix := range []string{"java.", "javax.", "jdk.", "sun.", "com.sun."} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
