// Package bitfield packs and unpacks annotated struct fields into
// integers. This is a simplified version based on
// golang.org/x/text/internal/gen/bitfield.
package bitfield

import (
	"fmt"
	"reflect"
	"strings"
)

// Pack packs annotated bit ranges of struct x into an integer.
// Only fields that have a "bitfield" tag are compacted. Fields are packed
// in declaration order, the first field in the lowest bits.
func Pack(x interface{}, numBits uint) (packed uint64, err error) {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, err := tagBits(field)
		if err != nil {
			return 0, err
		}
		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBits uint64
		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("bitfield: Pack: negative value %d for field %s", val, field.Name)
			}
			fieldBits = uint64(val)
		default:
			return 0, fmt.Errorf("bitfield: Pack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := uint64(1)<<bits - 1
		if fieldBits > maxValue {
			return 0, fmt.Errorf("bitfield: Pack: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if numBits > 0 && bitOffset > numBits {
		return 0, fmt.Errorf("bitfield: Pack: total bits %d exceeds %d", bitOffset, numBits)
	}
	return packed, nil
}

// Unpack is the inverse of Pack: it fills the tagged fields of the struct
// pointed to by x from the bit ranges of packed.
func Unpack(packed uint64, x interface{}) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack: expected pointer to struct, got %v", v.Kind())
	}
	v = v.Elem()

	t := v.Type()
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, err := tagBits(field)
		if err != nil {
			return err
		}
		if bits == 0 {
			continue
		}

		fieldBits := (packed >> bitOffset) & (uint64(1)<<bits - 1)
		fieldValue := v.Field(i)
		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(fieldBits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldValue.SetUint(fieldBits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fieldValue.SetInt(int64(fieldBits))
		default:
			return fmt.Errorf("bitfield: Unpack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}
		bitOffset += bits
	}
	return nil
}

// tagBits parses a field's "bitfield" tag of the form ",bits" or
// "name,bits". A missing tag yields zero bits, skipping the field.
func tagBits(field reflect.StructField) (uint, error) {
	tag := field.Tag.Get("bitfield")
	if tag == "" {
		return 0, nil
	}
	var bits uint
	if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
		name, width, ok := strings.Cut(tag, ",")
		if !ok || name == "" {
			return 0, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, field.Name)
		}
		if _, err := fmt.Sscanf(width, "%d", &bits); err != nil {
			return 0, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, field.Name)
		}
	}
	return bits, nil
}
