package bridge

import "errors"

// Sentinel errors for routing conditions, mirroring the root package's
// errors.go convention used throughout this module.
var (
	// ErrNoRoute is returned by Send when a UNIDATA_REQUEST's
	// destination is neither the local loopback address nor a
	// registered DTS channel, or resolves to no bound SIS SAP (spec
	// §4.7: "otherwise drop").
	ErrNoRoute = errors.New("bridge: no route to destination")
)
