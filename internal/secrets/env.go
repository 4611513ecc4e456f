package secrets

import (
	"os"
	"strings"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// FileSuffix is appended to a variable name to point at a file holding its value.
const FileSuffix = "_FILE"

// FromEnv resolves the secret stored in the variable name, or in the file named by
// name+FileSuffix. The file variant wins when both are present.
func FromEnv(lookup LookupFunc, name string) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	value, _ := lookup(name)
	file, _ := lookup(name + FileSuffix)

	return Load(Source{
		Name:  name,
		Value: value,
		File:  strings.TrimSpace(file),
	})
}

// MapLookup adapts a static map into a LookupFunc.
func MapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}
