package script

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pgavlin/warpvm/exec"
)

// An ExpectationError is returned when an operation's result does not match its expected value.
type ExpectationError struct {
	Op       int
	Expected uint64
	Actual   uint64
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("op %d: expected %d, got %d", e.Op, e.Expected, e.Actual)
}

// A Runner instantiates a script's modules and executes its operations.
type Runner struct {
	Store *exec.Store

	out    io.Writer
	tables map[string]*exec.Table
}

// NewRunner creates a runner that reports operation results to out.
func NewRunner(out io.Writer) *Runner {
	return &Runner{
		Store:  exec.NewStore(),
		out:    out,
		tables: map[string]*exec.Table{},
	}
}

// Close closes every instance created by the runner.
func (r *Runner) Close() error {
	return r.Store.Close()
}

// Table returns the table with the given qualified name.
func (r *Runner) Table(name string) (*exec.Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

// Run instantiates the script's modules in order and then executes its operations. Execution stops at the first
// failing operation; a trap is returned as-is, so callers can distinguish it with errors.As.
func (r *Runner) Run(s *Script) error {
	for _, m := range s.Modules {
		if err := r.instantiate(m); err != nil {
			return fmt.Errorf("module %s: %w", m.Name, err)
		}
	}
	for i, op := range s.Ops {
		if err := r.step(i, op); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) instantiate(m Module) error {
	defs := make([]exec.TableDef, len(m.Tables))
	for i, t := range m.Tables {
		typ, err := tableType(t.Kind, t.Min, t.Max)
		if err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		segments := make([]exec.ElementSegment, len(t.Elements))
		for j, e := range t.Elements {
			init := make([]exec.Reference, len(e.Init))
			for k, v := range e.Init {
				init[k] = reference(typ.Kind, v)
			}
			segments[j] = exec.ElementSegment{Offset: e.Offset, Init: init}
		}
		defs[i] = exec.TableDef{Name: t.Name, Type: typ, Style: exec.StyleCallerChecksSignature, Elements: segments}
	}

	// Imports are resolved before the instance is created so that a failed import leaves nothing behind.
	imported := make(map[string]*exec.Table, len(m.Imports))
	for _, im := range m.Imports {
		for _, t := range m.Tables {
			if t.Name == im.Name {
				return fmt.Errorf("import %s: name is also used by a table defined in the module", im.Name)
			}
		}
		if _, ok := imported[m.Name+"."+im.Name]; ok {
			return fmt.Errorf("import %s: duplicate import name", im.Name)
		}
		typ, err := tableType(im.Kind, im.Min, im.Max)
		if err != nil {
			return fmt.Errorf("import %s: %w", im.Name, err)
		}
		t, err := r.Store.ResolveTable(im.Module, im.Table, typ)
		if err != nil {
			return fmt.Errorf("import %s: %w", im.Name, err)
		}
		imported[m.Name+"."+im.Name] = t
	}

	inst, err := exec.NewInstance(m.Name, defs)
	if err != nil {
		return err
	}
	if err := r.Store.RegisterInstance(inst); err != nil {
		inst.Close()
		return err
	}

	for name, t := range imported {
		r.tables[name] = t
	}
	for i, name := range inst.TableNames() {
		r.tables[m.Name+"."+name] = inst.Tables()[i]
	}
	return nil
}

func (r *Runner) step(i int, op Op) error {
	t, err := r.Table(op.Table)
	if err != nil {
		return fmt.Errorf("op %d: %w", i, err)
	}

	var result uint64
	switch strings.ToLower(op.Op) {
	case "size":
		result = uint64(t.Size())
		fmt.Fprintf(r.out, "size %s -> %d\n", op.Table, result)
	case "grow":
		prev, ok := t.Grow(op.Delta)
		if !ok {
			// A rejected grow is reported to module code as -1.
			result = uint64(^uint32(0))
			fmt.Fprintf(r.out, "grow %s %d -> failed\n", op.Table, op.Delta)
		} else {
			result = uint64(prev)
			fmt.Fprintf(r.out, "grow %s %d -> %d\n", op.Table, op.Delta, prev)
		}
	case "get":
		ref, err := t.Get(op.Index)
		if err != nil {
			return r.fail(i, op, err)
		}
		result = RawValue(ref)
		fmt.Fprintf(r.out, "get %s[%d] -> %s\n", op.Table, op.Index, formatReference(ref))
	case "set":
		if err := t.Set(op.Index, reference(t.Type().Kind, op.Value)); err != nil {
			return r.fail(i, op, err)
		}
		fmt.Fprintf(r.out, "set %s[%d] = %d\n", op.Table, op.Index, op.Value)
	case "fill":
		if err := t.Fill(op.Index, reference(t.Type().Kind, op.Value), op.Count); err != nil {
			return r.fail(i, op, err)
		}
		fmt.Fprintf(r.out, "fill %s[%d:+%d] = %d\n", op.Table, op.Index, op.Count, op.Value)
	case "copy":
		src := t
		if op.Source != "" {
			if src, err = r.Table(op.Source); err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		if err := t.Copy(src, op.Index, op.SrcIndex, op.Count); err != nil {
			return r.fail(i, op, err)
		}
		fmt.Fprintf(r.out, "copy %s[%d:+%d] <- %s[%d]\n", op.Table, op.Index, op.Count, sourceName(op), op.SrcIndex)
	default:
		return fmt.Errorf("op %d: unknown operation %q", i, op.Op)
	}

	if op.Expect != nil && *op.Expect != result {
		return &ExpectationError{Op: i, Expected: *op.Expect, Actual: result}
	}
	return nil
}

func (r *Runner) fail(i int, op Op, err error) error {
	var trap *exec.Trap
	if errors.As(err, &trap) {
		fmt.Fprintf(r.out, "op %d: %s %s -> trap: %v\n", i, op.Op, op.Table, trap.Code)
	}
	return err
}

func sourceName(op Op) string {
	if op.Source == "" {
		return op.Table
	}
	return op.Source
}

// RawValue returns the raw value of a reference. The null reference of either kind is 0.
func RawValue(ref exec.Reference) uint64 {
	switch ref := ref.(type) {
	case exec.FuncRef:
		return uint64(ref)
	case exec.ExternRef:
		return uint64(ref)
	default:
		return 0
	}
}

func formatReference(ref exec.Reference) string {
	if exec.IsNull(ref) {
		return "ref.null " + ref.Kind().String()
	}
	return fmt.Sprintf("%s %#x", ref.Kind(), RawValue(ref))
}
