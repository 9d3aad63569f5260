// environment.go describes the request and runtime values stamped on every record.

package errtrap

import (
	"os"
	"runtime"
	"time"
)

// Environment exposes the request metadata of the in-flight request.
// Host bindings supply one per request through WithRequest.
type Environment interface {
	// RequestTime is when the request started.
	RequestTime() time.Time

	// RequestURI is the path and query of the request.
	RequestURI() string

	// RequestHost is the value of the Host header.
	RequestHost() string

	// ScriptPath identifies the code serving the request.
	ScriptPath() string

	// Referer is the referring URL, empty when absent.
	Referer() string
}

// StaticEnvironment is an Environment backed by fixed values.
type StaticEnvironment struct {
	Time   time.Time
	URI    string
	Host   string
	Script string
	Ref    string
}

func (e StaticEnvironment) RequestTime() time.Time { return e.Time }
func (e StaticEnvironment) RequestURI() string     { return e.URI }
func (e StaticEnvironment) RequestHost() string    { return e.Host }
func (e StaticEnvironment) ScriptPath() string     { return e.Script }
func (e StaticEnvironment) Referer() string        { return e.Ref }

var processStart = time.Now()

// ProcessEnvironment describes the current process when no request scope is
// available: the request time is the process start and the script path is
// the executable.
func ProcessEnvironment() Environment {
	script, err := os.Executable()
	if err != nil {
		script = os.Args[0]
	}
	return StaticEnvironment{Time: processStart, Script: script}
}

// RuntimeInfo identifies the running binary on every record.
type RuntimeInfo struct {
	Version string
	OS      string
}

// CurrentRuntime reports the Go version and operating system of this process.
func CurrentRuntime() RuntimeInfo {
	return RuntimeInfo{Version: runtime.Version(), OS: runtime.GOOS}
}
