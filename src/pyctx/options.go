package pyctx

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"
)

// Options is the host-facing construction struct for a Context, mirroring
// spec.md §6.1's Run options: modules, filesystem, env, timeout_ms,
// network, sql, object_storage, profile.
type Options struct {
	Modules       []string
	Filesystem    FilesystemAPI
	Env           map[string]string
	TimeoutMillis int64
	Network       bool
	SQL           bool
	ObjectStorage bool
	Profile       bool
}

// Validate aggregates every configuration problem into one error via
// go-multierror, instead of stopping at the first, so a host application
// seeing a rejected Options sees every reason at once.
func (o Options) Validate() error {
	var result *multierror.Error
	if o.TimeoutMillis < 0 {
		result = multierror.Append(result, errInvalid("timeout_ms must not be negative"))
	}
	for _, m := range o.Modules {
		if !knownModules[m] && !capabilityModules[m] {
			result = multierror.Append(result, errInvalid("unknown module capability: "+m))
		}
	}
	return result.ErrorOrNil()
}

type optionError string

func (e optionError) Error() string { return string(e) }

func errInvalid(msg string) error { return optionError(msg) }

// knownModules is the fixed set of stdlib modules this interpreter can
// grant capability for; spec.md §6.1 scopes "modules" to a short
// allowlist rather than the full Python standard library.
var knownModules = map[string]bool{
	"math": true, "json": true, "re": true, "datetime": true,
	"itertools": true, "collections": true, "random": true, "string": true,
}

// Build turns validated Options into a runnable Context.
func (o Options) Build() (*Context, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	modSet := make(map[string]bool, len(o.Modules))
	for _, m := range o.Modules {
		modSet[m] = true
	}
	caps := Capabilities{
		Filesystem:    o.Filesystem,
		Network:       o.Network,
		SQL:           o.SQL,
		ObjectStorage: o.ObjectStorage,
		Modules:       modSet,
	}
	ctx := New(caps, o.Env, time.Duration(o.TimeoutMillis)*time.Millisecond)
	return ctx, nil
}

// HTTPClient is the capability-gated HTTP client used by the network
// builtins when a Context's Network capability is enabled. Requests that
// fail transiently are retried with backoff rather than surfacing a
// transient TCP error straight into the sandboxed program's exception
// handling.
func HTTPClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	c := rc.StandardClient()
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}
