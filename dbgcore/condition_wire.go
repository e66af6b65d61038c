// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbgcore

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rdagent/rdagent/condition"
)

// Condition ASTs travel over the wire as a single data_blob argument
// in this compact prefix encoding (the spec is explicit that the tree
// "is built once... over the wire protocol, not parsed from text", so
// this is the front end's serialization of an already-built tree, not
// a text grammar):
//
//	0x00 BoolAnd   <u32 n><n children>
//	0x01 BoolOr    <u32 n><n children>
//	0x02 Arith     <u8 op><u32 n><n children>
//	0x03 Rel       <u8 op><left><right>
//	0x04 Mem       <addr expr>
//	0x05 Ident     <u16 len><name bytes>
//	0x06 Num       <u32 value>
//	0x07 Sub       <inner>
var errConditionTruncated = errors.New("dbgcore: truncated condition encoding")

type conditionReader struct {
	buf []byte
	pos int
}

func (r *conditionReader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errConditionTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *conditionReader) u16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, errConditionTruncated
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *conditionReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errConditionTruncated
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *conditionReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errConditionTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// decodeCondition parses a condition AST from its wire encoding.
func decodeCondition(data []byte) (condition.Node, error) {
	r := &conditionReader{buf: data}
	n, err := decodeConditionNode(r)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func decodeConditionNode(r *conditionReader) (condition.Node, error) {
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0x00, 0x01:
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		op := condition.LogicalAnd
		if tag == 0x01 {
			op = condition.LogicalOr
		}
		children := make([]condition.Node, 0, count)
		for i := uint32(0); i < count; i++ {
			c, err := decodeConditionNode(r)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &condition.BoolExpr{Op: op, Children: children}, nil
	case 0x02:
		opb, err := r.byte()
		if err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		children := make([]condition.Node, 0, count)
		for i := uint32(0); i < count; i++ {
			c, err := decodeConditionNode(r)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &condition.ArithExpr{Op: condition.ArithOp(opb), Children: children}, nil
	case 0x03:
		opb, err := r.byte()
		if err != nil {
			return nil, err
		}
		left, err := decodeConditionNode(r)
		if err != nil {
			return nil, err
		}
		right, err := decodeConditionNode(r)
		if err != nil {
			return nil, err
		}
		return &condition.RelExpr{Op: condition.RelOp(opb), Left: left, Right: right}, nil
	case 0x04:
		inner, err := decodeConditionNode(r)
		if err != nil {
			return nil, err
		}
		return &condition.MemExpr{Addr: inner}, nil
	case 0x05:
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		name, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		return &condition.Ident{Name: string(name)}, nil
	case 0x06:
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		return &condition.Num{Value: v}, nil
	case 0x07:
		inner, err := decodeConditionNode(r)
		if err != nil {
			return nil, err
		}
		return &condition.SubExpr{Inner: inner}, nil
	default:
		return nil, errors.Errorf("dbgcore: unknown condition tag %#x", tag)
	}
}
