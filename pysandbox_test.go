package pysandbox

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxed-py/interp/src/pyctx"
	"github.com/sandboxed-py/interp/src/pyfs"
	"github.com/sandboxed-py/interp/src/pygen"
	"github.com/sandboxed-py/interp/src/pyval"
	"github.com/sandboxed-py/interp/src/pyweb"
)

func TestRunArithmetic(t *testing.T) {
	result, err := Run("2 + 3", Options{})
	require.Nil(t, err)
	assert.Equal(t, "5", pyval.Stringify(result.Value))
}

func TestRunSorted(t *testing.T) {
	result, err := Run("sorted([3, 1, 2])", Options{})
	require.Nil(t, err)
	assert.Equal(t, "[1, 2, 3]", pyval.Stringify(result.Value))
}

func TestRunFunctionsComposeAndCall(t *testing.T) {
	src := `
def add(a, b):
    return a + b

def multiply(x, y):
    return x * y

multiply(add(3, 4), 5)
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	assert.Equal(t, "35", pyval.Stringify(result.Value))
}

func TestRunClassFieldAssignment(t *testing.T) {
	src := `
class Page:
    def __init__(self, title, slug):
        self.title = title
        self.slug = slug

p = Page("Hello World", "hello-world")
[p.title, p.slug]
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	assert.Equal(t, "['Hello World', 'hello-world']", pyval.Stringify(result.Value))
}

func TestRunFStringUsesUserDefinedStr(t *testing.T) {
	src := `
class Point:
    def __init__(self, x, y):
        self.x = x
        self.y = y
    def __str__(self):
        return f"({self.x}, {self.y})"

p = Point(1, 2)
f"p is {p}"
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	assert.Equal(t, "p is (1, 2)", pyval.Stringify(result.Value))
}

func TestRunStrBuiltinFallsBackWithoutDunder(t *testing.T) {
	src := `
class Plain:
    pass

str(Plain())
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	assert.Equal(t, "<Plain object>", pyval.Stringify(result.Value))
}

func TestRunEmptyProgramYieldsNone(t *testing.T) {
	result, err := Run("", Options{})
	require.Nil(t, err)
	assert.Equal(t, pyval.KindNone, result.Value.Kind)
}

func TestRunDivideByZeroRaises(t *testing.T) {
	_, err := Run("1 / 0", Options{})
	require.NotNil(t, err)
}

func TestRunInfiniteGeneratorTakeFirstThree(t *testing.T) {
	src := `
def g():
    i = 0
    while True:
        yield i
        i += 1

g()
`
	start := time.Now()
	result, err := Run(src, Options{})
	require.Nil(t, err)
	require.Equal(t, pyval.KindGenerator, result.Value.Kind)

	gen := result.Value.Obj.(*pygen.Generator)
	var got []int64
	for i := 0; i < 3; i++ {
		v, ok := gen.Next(pyval.None)
		require.True(t, ok)
		got = append(got, v.Int.Int64())
	}
	assert.Equal(t, []int64{0, 1, 2}, got)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRunListOfFiniteGeneratorDrainsEagerly(t *testing.T) {
	src := `
def g():
    yield 1
    yield 2
    yield 3

list(g())
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	assert.Equal(t, "[1, 2, 3]", pyval.Stringify(result.Value))
}

func TestRunSumOverGeneratorExpression(t *testing.T) {
	src := `
xs = [1, 2, 3, 4]
sum(x * x for x in xs)
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	assert.Equal(t, "30", pyval.Stringify(result.Value))
}

func TestRunIOWriteThenReadRoundTrip(t *testing.T) {
	src := `
import io
io.write("notes.txt", "hello")
io.read("notes.txt")
`
	opts := Options{Options: pyctx.Options{
		Modules:    []string{"io"},
		Filesystem: pyfs.NewMem(),
	}}
	result, err := Run(src, opts)
	require.Nil(t, err)
	assert.Equal(t, "hello", pyval.Stringify(result.Value))
}

func TestRunIOWithoutFilesystemCapabilityRaises(t *testing.T) {
	src := `
import io
io.read("notes.txt")
`
	_, err := Run(src, Options{Options: pyctx.Options{Modules: []string{"io"}}})
	require.NotNil(t, err)
	assert.Equal(t, "OSError", err.ExceptionType)
}

func TestRunNetGetWithoutNetworkCapabilityRaises(t *testing.T) {
	src := `
import net
net.get("http://example.invalid/")
`
	_, err := Run(src, Options{Options: pyctx.Options{Modules: []string{"net"}}})
	require.NotNil(t, err)
	assert.Equal(t, "ConnectionError", err.ExceptionType)
}

func TestRunNetGetReachesHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	src := `
import net
r = net.get("` + srv.URL + `")
r["text"]
`
	opts := Options{Options: pyctx.Options{Modules: []string{"net"}, Network: true}}
	result, err := Run(src, opts)
	require.Nil(t, err)
	assert.Equal(t, "pong", pyval.Stringify(result.Value))
}

func TestHandleValidatesBodyAgainstAnnotatedModel(t *testing.T) {
	src := `
import web

def create_user(body: UserModel):
    return {"status": 201, "body": body}

web.post("/users", create_user)
`
	initFn := &pyval.Func{Params: []pyval.Param{{Name: "self"}, {Name: "name"}, {Name: "age"}}}
	attrs := pyval.NewDict()
	attrs.SetStr("__init__", pyval.Value{Kind: pyval.KindFunc, Obj: initFn})
	userModel := &pyval.Class{Name: "UserModel", Attrs: attrs}
	userModel.MRO = []*pyval.Class{userModel}

	opts := Options{CustomModules: map[string]pyval.Value{
		"UserModel": {Kind: pyval.KindClass, Obj: userModel},
	}}
	result, err := Run(src, opts)
	require.Nil(t, err)

	incomplete := pyval.NewDict()
	incomplete.SetStr("name", pyval.Str("Ada"))
	req := pyweb.Request{Method: "POST", Path: "/users", Body: pyval.Value{Kind: pyval.KindDict, Obj: incomplete}}
	_, _, herr := Handle(req, result.Context)
	require.NotNil(t, herr)
	assert.Equal(t, "ValidationError", herr.ExceptionType)

	complete := pyval.NewDict()
	complete.SetStr("name", pyval.Str("Ada"))
	complete.SetStr("age", pyval.Int(30))
	req.Body = pyval.Value{Kind: pyval.KindDict, Obj: complete}
	resp, _, herr2 := Handle(req, result.Context)
	require.Nil(t, herr2)
	assert.Equal(t, 201, resp.Status)
}

func TestSnapshotResumePreservesOutput(t *testing.T) {
	src := `
print("before")
x = 21 * 2
print("after")
x
`
	result, err := Run(src, Options{})
	require.Nil(t, err)
	require.Equal(t, []string{"before", "after"}, Output(result.Context))

	snap, serr := Snapshot(result.Context)
	require.NoError(t, serr)
	require.True(t, snap.Verify())

	resumed, rerr := Resume(src, snap, Options{})
	require.Nil(t, rerr)
	assert.Equal(t, Output(result.Context), Output(resumed.Context))
	assert.Equal(t, pyval.Stringify(result.Value), pyval.Stringify(resumed.Value))
}
