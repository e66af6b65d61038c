// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package condition

import "strings"

// sentinel is the value substituted for any failure that the spec
// says must not propagate through the tree: an unresolved identifier
// or a memory read failure.
const sentinel uint32 = 0xDEADBEEA

// EvalContext supplies the register, thread and memory state a
// condition is evaluated against. It has no dependency on dbgcore or
// any concrete backend, keeping this package a leaf.
type EvalContext interface {
	// RegisterValue resolves a register of the active thread,
	// case-insensitively. ok is false if no such register exists.
	RegisterValue(name string) (value uint32, ok bool)
	// ActiveThreadID returns the tid that Ident("tid") resolves to.
	ActiveThreadID() uint32
	// ReadMemory32 reads four bytes at addr and returns them as an
	// unsigned 32-bit native-endian integer. ok is false on any read
	// failure.
	ReadMemory32(addr uint64) (value uint32, ok bool)
}

// CountingContext wraps an EvalContext and counts RegisterValue
// lookups (the register Idents resolved), letting tests detect whether
// And/Or actually short-circuited. An Ident named "tid" resolves through
// ActiveThreadID and is not counted.
type CountingContext struct {
	EvalContext
	IdentLookups int
}

func (c *CountingContext) RegisterValue(name string) (uint32, bool) {
	c.IdentLookups++
	return c.EvalContext.RegisterValue(name)
}

// Eval walks n and returns its value under ctx.
func Eval(n Node, ctx EvalContext) uint32 {
	switch e := n.(type) {
	case *BoolExpr:
		return evalBool(e, ctx)
	case *ArithExpr:
		return evalArith(e, ctx)
	case *RelExpr:
		l := Eval(e.Left, ctx)
		r := Eval(e.Right, ctx)
		return evalRel(e.Op, l, r)
	case *MemExpr:
		addr := uint64(Eval(e.Addr, ctx))
		v, ok := ctx.ReadMemory32(addr)
		if !ok {
			return sentinel
		}
		return v
	case *Ident:
		if strings.EqualFold(e.Name, "tid") {
			return ctx.ActiveThreadID()
		}
		v, ok := ctx.RegisterValue(e.Name)
		if !ok {
			return sentinel
		}
		return v
	case *Num:
		return e.Value
	case *SubExpr:
		return Eval(e.Inner, ctx)
	default:
		return sentinel
	}
}

func evalBool(e *BoolExpr, ctx EvalContext) uint32 {
	switch e.Op {
	case LogicalAnd:
		for _, c := range e.Children {
			if Eval(c, ctx) == 0 {
				return 0
			}
		}
		return 1
	case LogicalOr:
		for _, c := range e.Children {
			if Eval(c, ctx) != 0 {
				return 1
			}
		}
		return 0
	default:
		return sentinel
	}
}

func evalArith(e *ArithExpr, ctx EvalContext) uint32 {
	if len(e.Children) == 0 {
		return 0
	}
	acc := Eval(e.Children[0], ctx)
	for _, c := range e.Children[1:] {
		v := Eval(c, ctx)
		switch e.Op {
		case Add:
			acc = acc + v
		case Sub:
			acc = acc - v
		case Mul:
			acc = acc * v
		case Div:
			if v == 0 {
				return sentinel
			}
			acc = acc / v
		case Mod:
			if v == 0 {
				return sentinel
			}
			acc = acc % v
		case Shl:
			acc = acc << (v & 31)
		case Shr:
			acc = acc >> (v & 31)
		case And:
			acc = acc & v
		case Or:
			acc = acc | v
		case Xor:
			acc = acc ^ v
		}
	}
	return acc
}

func evalRel(op RelOp, l, r uint32) uint32 {
	var b bool
	switch op {
	case Eq:
		b = l == r
	case Ne:
		b = l != r
	case Lt:
		b = l < r
	case Gt:
		b = l > r
	case Le:
		b = l <= r
	case Ge:
		b = l >= r
	}
	if b {
		return 1
	}
	return 0
}

// Satisfied reports whether a breakpoint condition (nil means
// unconditional) evaluates non-zero, the gate the debugger core uses
// to decide whether to report a hit or silently resume.
func Satisfied(n Node, ctx EvalContext) bool {
	if n == nil {
		return true
	}
	return Eval(n, ctx) != 0
}
