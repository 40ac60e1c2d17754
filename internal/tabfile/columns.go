// Reflection-based column derivation for tables backing Go struct types.

package tabfile

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// ColumnsOf derives ordered column names from a struct type using JSON
// Schema reflection: column order follows field declaration order and json
// tags name the columns. System tables use this so their headers stay in
// step with the structs that read and write them.
func ColumnsOf[T any]() ([]string, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	// Inline properties (no $ref) so every field shows up as a top-level
	// property in declaration order.
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(t)

	var columns []string
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, pair.Key)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("type %s has no exported fields", t)
	}
	return columns, nil
}
