package pyweb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyval"
)

func funcValue(params ...string) pyval.Value {
	fn := &pyval.Func{}
	for _, p := range params {
		fn.Params = append(fn.Params, pyval.Param{Name: p})
	}
	return pyval.Value{Kind: pyval.KindFunc, Obj: fn}
}

func TestBuildTableMatchesPathParams(t *testing.T) {
	handler := funcValue("id")
	table := BuildTable([]pyctx.Route{
		{Method: "GET", Path: "/widgets/{id}", Handler: handler},
	})
	got, params, ok := table.Match(Request{Method: "GET", Path: "/widgets/42"})
	require.True(t, ok)
	assert.Equal(t, handler, got)
	assert.Equal(t, "42", params["id"])
}

func TestBuildTableNoMatch(t *testing.T) {
	table := BuildTable([]pyctx.Route{
		{Method: "GET", Path: "/widgets/{id}", Handler: funcValue("id")},
	})
	_, _, ok := table.Match(Request{Method: "POST", Path: "/widgets/42"})
	assert.False(t, ok)
}

func TestMatchMergesQueryWithoutOverridingPathParams(t *testing.T) {
	table := BuildTable([]pyctx.Route{
		{Method: "GET", Path: "/search/{term}", Handler: funcValue("term", "limit")},
	})
	_, params, ok := table.Match(Request{
		Method: "GET",
		Path:   "/search/widgets",
		Query:  map[string]string{"limit": "10", "term": "should-not-win"},
	})
	require.True(t, ok)
	assert.Equal(t, "widgets", params["term"])
	assert.Equal(t, "10", params["limit"])
}

func TestRegisterKeepsSameTemplateReRegistration(t *testing.T) {
	rt := NewRouteTable()
	rt.Register("GET", "/x", funcValue())
	rt.Register("GET", "/x", funcValue())
	assert.Len(t, rt.Routes(), 2)
}

func TestParamNamesSkipsStarArgs(t *testing.T) {
	fn := &pyval.Func{Params: []pyval.Param{
		{Name: "a"},
		{Name: "args", IsStar: true},
		{Name: "kwargs", IsDoubleStar: true},
		{Name: "b"},
	}}
	assert.Equal(t, []string{"a", "b"}, ParamNames(fn))
}
