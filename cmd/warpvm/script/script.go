// Package script loads and executes table scripts: TOML files that declare module instances with tables and a
// sequence of table operations to run against them.
//
//	[[module]]
//	name = "env"
//
//	  [[module.table]]
//	  name = "funcs"
//	  kind = "funcref"
//	  min = 2
//	  max = 4
//
//	    [[module.table.elem]]
//	    offset = 0
//	    init = [1, 2]
//
//	[[op]]
//	op = "grow"
//	table = "env.funcs"
//	delta = 1
//	expect = 2
package script

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pgavlin/warpvm/exec"
)

// Script is a parsed table script.
type Script struct {
	Modules []Module `toml:"module"`
	Ops     []Op     `toml:"op"`
}

// Module declares a module instance.
type Module struct {
	Name    string   `toml:"name"`
	Tables  []Table  `toml:"table"`
	Imports []Import `toml:"import"`
}

// Table declares a table defined by a module.
type Table struct {
	Name     string    `toml:"name"`
	Kind     string    `toml:"kind"`
	Min      uint32    `toml:"min"`
	Max      *uint32   `toml:"max"`
	Elements []Element `toml:"elem"`
}

// Element declares an element segment. Init values are raw reference values; 0 is the null reference.
type Element struct {
	Offset uint32   `toml:"offset"`
	Init   []uint64 `toml:"init"`
}

// Import declares a table imported from a previously declared module.
type Import struct {
	Name   string  `toml:"name"`
	Module string  `toml:"module"`
	Table  string  `toml:"table"`
	Kind   string  `toml:"kind"`
	Min    uint32  `toml:"min"`
	Max    *uint32 `toml:"max"`
}

// Op is a single table operation. Tables are named "module.table".
type Op struct {
	Op       string  `toml:"op"`
	Table    string  `toml:"table"`
	Source   string  `toml:"source"`
	Index    uint32  `toml:"index"`
	SrcIndex uint32  `toml:"src_index"`
	Delta    uint32  `toml:"delta"`
	Count    uint32  `toml:"count"`
	Value    uint64  `toml:"value"`
	Expect   *uint64 `toml:"expect"`
}

// Load parses the table script at the given path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	s, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return s, nil
}

// Parse parses a table script.
func Parse(data string) (*Script, error) {
	var s Script
	md, err := toml.Decode(data, &s)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("unknown key %v", undecoded[0])
	}
	return &s, nil
}

// ParseKind parses a table element kind.
func ParseKind(s string) (exec.Kind, error) {
	switch s {
	case "funcref", "":
		return exec.KindFuncRef, nil
	case "externref":
		return exec.KindExternRef, nil
	default:
		return 0, fmt.Errorf("unknown table kind %q", s)
	}
}

func tableType(kind string, min uint32, max *uint32) (exec.TableType, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return exec.TableType{}, err
	}
	return exec.TableType{Kind: k, Min: min, Max: max}, nil
}

// reference returns the reference of the given kind with the given raw value.
func reference(kind exec.Kind, v uint64) exec.Reference {
	if kind == exec.KindExternRef {
		return exec.ExternRef(uintptr(v))
	}
	return exec.FuncRef(uintptr(v))
}
