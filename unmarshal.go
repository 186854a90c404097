package zenwire

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/anirudhraja/zenwire/codec"
)

// Unmarshal decodes protobuf bytes into a Go struct using reflection. Struct
// fields are matched by json tag, then by the snake_case form of their name,
// then by the name itself.
func (z *Zenwire) Unmarshal(data []byte, messageType string, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("unmarshal target must be a pointer to struct")
	}

	result, err := z.Parse(data, messageType)
	if err != nil {
		return err
	}

	return mapToStruct(result, rv.Elem())
}

// mapToStruct maps parsed result to struct fields
func mapToStruct(data codec.Record, rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		for _, key := range recordKeys(field) {
			value, ok := data[key]
			if !ok {
				continue
			}
			if err := setFieldValue(fieldValue, value); err != nil {
				return fmt.Errorf("failed to set field %s: %v", field.Name, err)
			}
			break
		}
	}
	return nil
}

func recordKeys(field reflect.StructField) []string {
	var keys []string
	if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
		if name := strings.Split(tag, ",")[0]; name != "" {
			keys = append(keys, name)
		}
	}
	return append(keys, toSnakeCase(field.Name), field.Name)
}

// setFieldValue sets a struct field with type conversion
func setFieldValue(fieldValue reflect.Value, value interface{}) error {
	if value == nil {
		return nil
	}

	switch t := value.(type) {
	case codec.Record:
		return setMessage(fieldValue, t)
	case []interface{}:
		return setList(fieldValue, t)
	case map[interface{}]interface{}:
		return setMap(fieldValue, t)
	}

	sourceValue := reflect.ValueOf(value)
	if sourceValue.Type().AssignableTo(fieldValue.Type()) {
		fieldValue.Set(sourceValue)
		return nil
	}

	// reflect converts integers to strings as runes; a number is never a
	// valid string value.
	if fieldValue.Kind() == reflect.String && sourceValue.Kind() != reflect.String && sourceValue.Kind() != reflect.Slice {
		return fmt.Errorf("cannot convert %T to %s", value, fieldValue.Type())
	}
	if sourceValue.Type().ConvertibleTo(fieldValue.Type()) {
		fieldValue.Set(sourceValue.Convert(fieldValue.Type()))
		return nil
	}

	return fmt.Errorf("cannot convert %T to %s", value, fieldValue.Type())
}

func setMessage(fieldValue reflect.Value, rec codec.Record) error {
	switch {
	case fieldValue.Kind() == reflect.Struct:
		return mapToStruct(rec, fieldValue)
	case fieldValue.Kind() == reflect.Ptr && fieldValue.Type().Elem().Kind() == reflect.Struct:
		target := reflect.New(fieldValue.Type().Elem())
		if err := mapToStruct(rec, target.Elem()); err != nil {
			return err
		}
		fieldValue.Set(target)
		return nil
	case fieldValue.Kind() == reflect.Interface:
		fieldValue.Set(reflect.ValueOf(rec))
		return nil
	}
	return fmt.Errorf("cannot convert message to %s", fieldValue.Type())
}

func setList(fieldValue reflect.Value, list []interface{}) error {
	if fieldValue.Kind() == reflect.Interface {
		fieldValue.Set(reflect.ValueOf(list))
		return nil
	}
	if fieldValue.Kind() != reflect.Slice {
		return fmt.Errorf("cannot convert repeated field to %s", fieldValue.Type())
	}
	out := reflect.MakeSlice(fieldValue.Type(), len(list), len(list))
	for i, item := range list {
		if err := setFieldValue(out.Index(i), item); err != nil {
			return fmt.Errorf("element %d: %v", i, err)
		}
	}
	fieldValue.Set(out)
	return nil
}

func setMap(fieldValue reflect.Value, m map[interface{}]interface{}) error {
	if fieldValue.Kind() == reflect.Interface {
		fieldValue.Set(reflect.ValueOf(m))
		return nil
	}
	if fieldValue.Kind() != reflect.Map {
		return fmt.Errorf("cannot convert map field to %s", fieldValue.Type())
	}
	out := reflect.MakeMapWithSize(fieldValue.Type(), len(m))
	for k, v := range m {
		key := reflect.New(fieldValue.Type().Key()).Elem()
		if err := setFieldValue(key, k); err != nil {
			return fmt.Errorf("map key %v: %v", k, err)
		}
		val := reflect.New(fieldValue.Type().Elem()).Elem()
		if err := setFieldValue(val, v); err != nil {
			return fmt.Errorf("map value for %v: %v", k, err)
		}
		out.SetMapIndex(key, val)
	}
	fieldValue.Set(out)
	return nil
}

// toSnakeCase converts a Go field name to the snake_case form used in .proto
// files: UserID becomes user_id and HTTPSConnection https_connection.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				sb.WriteByte('_')
			}
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}
