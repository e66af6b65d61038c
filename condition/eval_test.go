// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package condition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCtx struct {
	regs map[string]uint32
	tid  uint32
	mem  map[uint64]uint32
}

func (f *fakeCtx) RegisterValue(name string) (uint32, bool) {
	for k, v := range f.regs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return 0, false
}
func (f *fakeCtx) ActiveThreadID() uint32 { return f.tid }
func (f *fakeCtx) ReadMemory32(addr uint64) (uint32, bool) {
	v, ok := f.mem[addr]
	return v, ok
}

func TestEvalArithWraparound(t *testing.T) {
	ctx := &fakeCtx{}
	n := &ArithExpr{Op: Sub, Children: []Node{&Num{Value: 0}, &Num{Value: 1}}}
	require.Equal(t, uint32(0xFFFFFFFF), Eval(n, ctx))
}

func TestEvalRel(t *testing.T) {
	ctx := &fakeCtx{}
	n := &RelExpr{Op: Lt, Left: &Num{Value: 3}, Right: &Num{Value: 5}}
	require.Equal(t, uint32(1), Eval(n, ctx))
}

func TestEvalIdentResolvesRegisterCaseInsensitive(t *testing.T) {
	ctx := &fakeCtx{regs: map[string]uint32{"EAX": 0x1234}}
	require.Equal(t, uint32(0x1234), Eval(&Ident{Name: "eax"}, ctx))
}

func TestEvalIdentTID(t *testing.T) {
	ctx := &fakeCtx{tid: 7}
	require.Equal(t, uint32(7), Eval(&Ident{Name: "TID"}, ctx))
}

func TestEvalMissingIdentYieldsSentinel(t *testing.T) {
	ctx := &fakeCtx{}
	require.Equal(t, sentinel, Eval(&Ident{Name: "nope"}, ctx))
}

func TestEvalMemReadFailureYieldsSentinel(t *testing.T) {
	ctx := &fakeCtx{mem: map[uint64]uint32{}}
	require.Equal(t, sentinel, Eval(&MemExpr{Addr: &Num{Value: 0x1000}}, ctx))
}

func TestEvalMemReadSuccess(t *testing.T) {
	ctx := &fakeCtx{mem: map[uint64]uint32{0x2000: 99}}
	require.Equal(t, uint32(99), Eval(&MemExpr{Addr: &Num{Value: 0x2000}}, ctx))
}

// countingIdent only embeds *Ident and is not used by any test; the
// short-circuit tests count lookups through CountingContext instead.
type countingIdent struct {
	*Ident
}

func TestAndShortCircuits(t *testing.T) {
	base := &fakeCtx{regs: map[string]uint32{"ZERO": 0, "ONE": 1}}
	ctx := &CountingContext{EvalContext: base}
	n := &BoolExpr{Op: LogicalAnd, Children: []Node{
		&Ident{Name: "ZERO"},
		&Ident{Name: "ONE"},
	}}
	require.Equal(t, uint32(0), Eval(n, ctx))
	require.Equal(t, 1, ctx.IdentLookups, "second child must not be evaluated once first is false")
}

func TestOrShortCircuits(t *testing.T) {
	base := &fakeCtx{regs: map[string]uint32{"ONE": 1, "ZERO": 0}}
	ctx := &CountingContext{EvalContext: base}
	n := &BoolExpr{Op: LogicalOr, Children: []Node{
		&Ident{Name: "ONE"},
		&Ident{Name: "ZERO"},
	}}
	require.Equal(t, uint32(1), Eval(n, ctx))
	require.Equal(t, 1, ctx.IdentLookups, "second child must not be evaluated once first is true")
}

func TestSatisfiedNilConditionAlwaysTrue(t *testing.T) {
	require.True(t, Satisfied(nil, &fakeCtx{}))
}
