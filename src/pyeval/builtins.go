package pyeval

import (
	"fmt"
	"time"

	"github.com/sandboxed-py/interp/src/pybuiltin"
	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyval"
)

// init wires pybuiltin's callback hook to this package's Call dispatcher,
// the other half of the dependency-injection trick documented on
// pybuiltin.SetCaller: map/filter/sorted(key=...)/min/max(key=...)
// need to invoke arbitrary Python callables, which only pyeval knows how
// to do.
func init() {
	pybuiltin.SetCaller(callFromBuiltin)
}

// builtinCallCtx is a Context with no capabilities and a one-hour quota,
// used for callbacks a host builtin makes into user code (map's function,
// sorted's key=...).
// These calls are not part of a Run's own budget accounting; they borrow
// time from whichever call triggered the builtin in the first place.
var builtinCallCtx = pyctx.New(pyctx.Capabilities{}, nil, time.Hour)

func callFromBuiltin(fn pyval.Value, args []pyval.Value) (pyval.Value, error) {
	o, _ := Call(fn, args, nil, builtinCallCtx, 0)
	switch o.Kind {
	case OValue, OReturned:
		return o.Value, nil
	case OException:
		return pyval.Value{}, fmt.Errorf("%s: %s", o.ExcType, o.ExcMsg)
	}
	return pyval.None, nil
}
