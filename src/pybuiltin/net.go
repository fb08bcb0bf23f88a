package pybuiltin

import (
	"fmt"

	"github.com/sandboxed-py/interp/src/pyval"
)

// NetDirective is the payload of an outbound-HTTP effect marker: pybuiltin
// has no Context (and so no HTTP client or network capability flag), so
// net.get/net.post only build the request description; pyeval's Call
// performs it against ctx.Caps.Network and ctx.HTTPClient().
type NetDirective struct {
	Method string
	URL    string
	Body   string
}

func netDirective(method string, a []pyval.Value) (pyval.Value, error) {
	if len(a) < 1 || a[0].Kind != pyval.KindStr {
		return pyval.Value{}, fmt.Errorf("net.%s(url, ...) requires a string url", method)
	}
	d := &NetDirective{Method: method, URL: a[0].Str}
	if len(a) > 1 {
		d.Body = pyval.Stringify(a[1])
	}
	return pyval.Value{Kind: pyval.KindEffect, Obj: d}, nil
}

// netModule is the minimal outbound-HTTP surface spec.md §6.1's "network"
// capability flag gates: get/post, each deferred to pyeval's Call as a
// NetDirective.
func netModule() pyval.Value {
	return module(map[string]pyval.Value{
		"get": bi("net.get", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return netDirective("GET", a)
		}),
		"post": bi("net.post", func(a []pyval.Value, _ map[string]pyval.Value) (pyval.Value, error) {
			return netDirective("POST", a)
		}),
	})
}
