package script

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgavlin/warpvm/exec"
)

const scenario = `
[[module]]
name = "env"

  [[module.table]]
  name = "funcs"
  kind = "funcref"
  min = 2
  max = 4

    [[module.table.elem]]
    offset = 0
    init = [7]

[[op]]
op = "size"
table = "env.funcs"
expect = 2

[[op]]
op = "grow"
table = "env.funcs"
delta = 1
expect = 2

[[op]]
op = "grow"
table = "env.funcs"
delta = 2
expect = 4294967295

[[op]]
op = "set"
table = "env.funcs"
index = 2
value = 160

[[op]]
op = "get"
table = "env.funcs"
index = 2
expect = 160

[[op]]
op = "get"
table = "env.funcs"
index = 3
`

func run(t *testing.T, text string) (*Runner, string, error) {
	s, err := Parse(text)
	require.NoError(t, err)

	var out bytes.Buffer
	r := NewRunner(&out)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })
	err = r.Run(s)
	return r, out.String(), err
}

func TestRunScenario(t *testing.T) {
	r, out, err := run(t, scenario)

	var trap *exec.Trap
	require.True(t, errors.As(err, &trap))
	assert.Equal(t, exec.TrapTableAccessOutOfBounds, trap.Code)

	assert.Equal(t, `size env.funcs -> 2
grow env.funcs 1 -> 2
grow env.funcs 2 -> failed
set env.funcs[2] = 160
get env.funcs[2] -> funcref 0xa0
op 5: get env.funcs -> trap: out of bounds table access
`, out)

	table, err := r.Table("env.funcs")
	require.NoError(t, err)
	assert.Equal(t, []exec.Reference{exec.FuncRef(7), exec.FuncRef(0), exec.FuncRef(160)}, table.Elements())
}

func TestRunImportAndCopy(t *testing.T) {
	r, out, err := run(t, `
[[module]]
name = "a"

  [[module.table]]
  name = "objects"
  kind = "externref"
  min = 4

    [[module.table.elem]]
    offset = 0
    init = [1, 2, 3, 4]

[[module]]
name = "b"

  [[module.import]]
  name = "shared"
  module = "a"
  table = "objects"
  kind = "externref"
  min = 2

  [[module.table]]
  name = "local"
  kind = "externref"
  min = 4

[[op]]
op = "copy"
table = "b.local"
source = "b.shared"
index = 1
src_index = 0
count = 3

[[op]]
op = "fill"
table = "b.shared"
index = 3
count = 1
value = 9

[[op]]
op = "copy"
table = "b.local"
index = 0
src_index = 1
count = 3
`)
	require.NoError(t, err)
	assert.Contains(t, out, "copy b.local[1:+3] <- b.shared[0]")

	local, err := r.Table("b.local")
	require.NoError(t, err)
	assert.Equal(t, []exec.Reference{exec.ExternRef(1), exec.ExternRef(2), exec.ExternRef(3), exec.ExternRef(3)}, local.Elements())

	// The import aliases the exporting module's table.
	objects, err := r.Table("a.objects")
	require.NoError(t, err)
	assert.Equal(t, []exec.Reference{exec.ExternRef(1), exec.ExternRef(2), exec.ExternRef(3), exec.ExternRef(9)}, objects.Elements())
}

func TestRunErrors(t *testing.T) {
	cases := []struct {
		name   string
		script string
		check  func(t *testing.T, err error)
	}{
		{
			name: "import type",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
  min = 1
[[module]]
name = "b"
  [[module.import]]
  name = "t"
  module = "a"
  table = "t"
  kind = "externref"
`,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, exec.ErrTableType) },
		},
		{
			name: "segment",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
  min = 1
    [[module.table.elem]]
    offset = 1
    init = [1]
`,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, exec.ErrElementSegmentDoesNotFit) },
		},
		{
			name: "expectation",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
  min = 1
[[op]]
op = "size"
table = "a.t"
expect = 2
`,
			check: func(t *testing.T, err error) {
				var expectation *ExpectationError
				require.True(t, errors.As(err, &expectation))
				assert.Equal(t, uint64(1), expectation.Actual)
			},
		},
		{
			name: "unknown op",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
[[op]]
op = "shrink"
table = "a.t"
`,
			check: func(t *testing.T, err error) { assert.EqualError(t, err, `op 0: unknown operation "shrink"`) },
		},
		{
			name: "duplicate module",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
[[module]]
name = "a"
  [[module.table]]
  name = "u"
`,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, exec.ErrDuplicateInstance) },
		},
		{
			name: "import shadows table",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
  min = 1
[[module]]
name = "b"
  [[module.import]]
  name = "t"
  module = "a"
  table = "t"
  [[module.table]]
  name = "t"
`,
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "module b: import t: name is also used by a table defined in the module")
			},
		},
		{
			name: "unknown kind",
			script: `
[[module]]
name = "a"
  [[module.table]]
  name = "t"
  kind = "i32"
`,
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), `unknown table kind "i32"`) },
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := run(t, c.script)
			require.Error(t, err)
			c.check(t, err)
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(`
[[op]]
op = "size"
tabel = "a.t"
`)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.toml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Modules, 1)
	assert.Equal(t, "funcs", s.Modules[0].Tables[0].Name)
	require.NotNil(t, s.Modules[0].Tables[0].Max)
	assert.Equal(t, uint32(4), *s.Modules[0].Tables[0].Max)
	assert.Len(t, s.Ops, 6)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
