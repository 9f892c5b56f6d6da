package ports

import "github.com/bft-labs/serially/pkg/log"

// Logger is the logging port. It is the public logger interface so that
// library users can pass their own implementation through pkg/serially.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors.
var (
	String   = log.String
	Int      = log.Int
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
)
