package rpclib

import (
	"fmt"
	"math"
	"reflect"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// ---------------------------------------------------------------------------
// Table -> message
// ---------------------------------------------------------------------------

// tableToMessage builds a dynamic message from the table at idx. Keys
// that are not strings, and names the descriptor does not know, are
// skipped.
func tableToMessage(ctx *bridge.Context, idx int, md *desc.MessageDescriptor) (*dynamic.Message, error) {
	s := ctx.S
	abs := s.AbsIndex(idx)
	msg := dynamic.NewMessage(md)

	s.PushNil()
	for s.Next(abs) {
		if s.TypeOf(-2) != vm.TypeString {
			s.Pop(1)
			continue
		}
		name, _ := s.ToString(-2)
		fld := md.FindFieldByName(name)
		if fld == nil {
			s.Pop(1)
			continue
		}
		v, err := toFieldValue(ctx, s.AbsIndex(-1), fld)
		if err != nil {
			s.Pop(2)
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if err := msg.TrySetField(fld, v); err != nil {
			s.Pop(2)
			return nil, fmt.Errorf("setting field %s: %w", name, err)
		}
		s.Pop(1)
	}
	return msg, nil
}

// toFieldValue converts the value at idx for a field. Map fields also
// report repeated, so they route first.
func toFieldValue(ctx *bridge.Context, idx int, fld *desc.FieldDescriptor) (any, error) {
	if fld.IsMap() {
		return toMapValue(ctx, idx, fld)
	}
	if fld.IsRepeated() {
		return toRepeatedValue(ctx, idx, fld)
	}
	return toElementValue(ctx, idx, fld)
}

func toRepeatedValue(ctx *bridge.Context, idx int, fld *desc.FieldDescriptor) (any, error) {
	s := ctx.S
	abs := s.AbsIndex(idx)
	if s.TypeOf(abs) != vm.TypeTable {
		return nil, fmt.Errorf("expected a sequence for repeated field, got %s", s.TypeOf(abs))
	}
	n := s.RawLen(abs)
	out := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		s.RawGetIndex(abs, int64(i))
		v, err := toElementValue(ctx, s.AbsIndex(-1), fld)
		s.Pop(1)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func toMapValue(ctx *bridge.Context, idx int, fld *desc.FieldDescriptor) (any, error) {
	s := ctx.S
	abs := s.AbsIndex(idx)
	if s.TypeOf(abs) != vm.TypeTable {
		return nil, fmt.Errorf("expected a table for map field, got %s", s.TypeOf(abs))
	}
	keyFld, valFld := fld.GetMapKeyType(), fld.GetMapValueType()
	out := make(map[any]any)
	s.PushNil()
	for s.Next(abs) {
		k, err := toElementValue(ctx, s.AbsIndex(-2), keyFld)
		if err != nil {
			s.Pop(2)
			return nil, fmt.Errorf("map key: %w", err)
		}
		v, err := toElementValue(ctx, s.AbsIndex(-1), valFld)
		if err != nil {
			s.Pop(2)
			return nil, fmt.Errorf("map value: %w", err)
		}
		out[k] = v
		s.Pop(1)
	}
	return out, nil
}

// toElementValue converts one scalar element. Repeated routing happens
// a level up; rechecking it here would recurse forever.
func toElementValue(ctx *bridge.Context, idx int, fld *desc.FieldDescriptor) (any, error) {
	s := ctx.S
	switch fld.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32,
		descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		n, err := bridge.PeekInteger(ctx, idx)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows int32", n)
		}
		return int32(n), nil
	case descriptorpb.FieldDescriptorProto_TYPE_INT64,
		descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		n, err := bridge.PeekInteger(ctx, idx)
		if err != nil {
			return nil, err
		}
		return n, nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		n, err := bridge.PeekInteger(ctx, idx)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxUint32 {
			return nil, fmt.Errorf("%d overflows uint32", n)
		}
		return uint32(n), nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		n, err := bridge.PeekInteger(ctx, idx)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("negative value %d for unsigned field", n)
		}
		return uint64(n), nil
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		f, err := bridge.PeekFloat(ctx, idx)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		f, err := bridge.PeekFloat(ctx, idx)
		if err != nil {
			return nil, err
		}
		return f, nil
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return s.ToBoolean(idx), nil
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		text, err := bridge.PeekText(ctx, idx)
		if err != nil {
			return nil, err
		}
		return text, nil
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		raw, err := bridge.PeekBinary(ctx, idx)
		if err != nil {
			return nil, err
		}
		return raw, nil
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		if s.TypeOf(idx) != vm.TypeTable {
			return nil, fmt.Errorf("expected a table for message field, got %s", s.TypeOf(idx))
		}
		sub, err := tableToMessage(ctx, idx, fld.GetMessageType())
		if err != nil {
			return nil, err
		}
		return sub, nil
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		if s.TypeOf(idx) == vm.TypeNumber {
			n, ok := s.ToInteger(idx)
			if !ok || n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("bad enum number for %s", fld.GetEnumType().GetFullyQualifiedName())
			}
			return int32(n), nil
		}
		name, err := bridge.PeekText(ctx, idx)
		if err != nil {
			return nil, err
		}
		ev := fld.GetEnumType().FindValueByName(name)
		if ev == nil {
			return nil, fmt.Errorf("unknown enum value %q for %s", name, fld.GetEnumType().GetFullyQualifiedName())
		}
		return ev.GetNumber(), nil
	}
	return nil, fmt.Errorf("cannot convert value to proto type %v", fld.GetType())
}

// ---------------------------------------------------------------------------
// Message -> table
// ---------------------------------------------------------------------------

// pushMessage pushes a message as a table. Set fields land in
// declaration order; unset fields stay absent.
func pushMessage(ctx *bridge.Context, msg *dynamic.Message) error {
	s := ctx.S
	s.NewTable()
	for _, fld := range msg.GetKnownFields() {
		if !msg.HasField(fld) {
			continue
		}
		if err := pushFieldValue(ctx, msg.GetField(fld), fld); err != nil {
			s.Pop(1)
			return fmt.Errorf("field %s: %w", fld.GetName(), err)
		}
		s.RawSetField(-2, fld.GetName())
	}
	return nil
}

func pushFieldValue(ctx *bridge.Context, v any, fld *desc.FieldDescriptor) error {
	if fld.IsMap() {
		return pushMapValue(ctx, v, fld)
	}
	if fld.IsRepeated() {
		return pushRepeatedValue(ctx, v, fld)
	}
	return pushElementValue(ctx, v, fld)
}

func pushRepeatedValue(ctx *bridge.Context, v any, fld *desc.FieldDescriptor) error {
	s := ctx.S
	slice := reflect.ValueOf(v)
	s.NewTable()
	for i := 0; i < slice.Len(); i++ {
		if err := pushElementValue(ctx, slice.Index(i).Interface(), fld); err != nil {
			s.Pop(1)
			return fmt.Errorf("element %d: %w", i+1, err)
		}
		s.RawSetIndex(-2, int64(i+1))
	}
	return nil
}

func pushMapValue(ctx *bridge.Context, v any, fld *desc.FieldDescriptor) error {
	s := ctx.S
	m, ok := v.(map[any]any)
	if !ok {
		return fmt.Errorf("expected map, got %T", v)
	}
	keyFld, valFld := fld.GetMapKeyType(), fld.GetMapValueType()
	s.NewTable()
	for k, mv := range m {
		if err := pushElementValue(ctx, k, keyFld); err != nil {
			s.Pop(1)
			return fmt.Errorf("map key: %w", err)
		}
		if err := pushElementValue(ctx, mv, valFld); err != nil {
			s.Pop(2)
			return fmt.Errorf("map value: %w", err)
		}
		s.RawSet(-3)
	}
	return nil
}

// pushElementValue pushes one scalar element; integers too wide for
// the machine's integer subtype degrade to floats.
func pushElementValue(ctx *bridge.Context, v any, fld *desc.FieldDescriptor) error {
	s := ctx.S
	switch fld.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32,
		descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		s.PushInteger(int64(v.(int32)))
	case descriptorpb.FieldDescriptorProto_TYPE_INT64,
		descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		s.PushInteger(v.(int64))
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		s.PushInteger(int64(v.(uint32)))
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64,
		descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		u := v.(uint64)
		if u > math.MaxInt64 {
			s.PushNumber(float64(u))
		} else {
			s.PushInteger(int64(u))
		}
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		s.PushNumber(float64(v.(float32)))
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		s.PushNumber(v.(float64))
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		s.PushBoolean(v.(bool))
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		s.PushString(v.(string))
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		s.PushString(string(v.([]byte)))
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		return pushMessage(ctx, v.(*dynamic.Message))
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		n := v.(int32)
		if ev := fld.GetEnumType().FindValueByNumber(n); ev != nil {
			s.PushString(ev.GetName())
		} else {
			s.PushInteger(int64(n))
		}
	default:
		return fmt.Errorf("unsupported proto type: %v", fld.GetType())
	}
	return nil
}
