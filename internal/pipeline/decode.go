package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// DecodeError marks model output that is not JSON or does not match the stage schema.
type DecodeError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s output: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decoder turns raw model output into T. It is immutable once built and shared by
// concurrent runs.
type decoder[T any] struct {
	stage        string
	instructions string
	schema       *validator.Schema
}

func newDecoder[T any](stage string) (*decoder[T], error) {
	var sample T

	reflector := &jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&sample)

	shown, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", stage, err)
	}

	instructions, err := renderPrompt(formatInstructions, struct{ Schema string }{Schema: string(shown)})
	if err != nil {
		return nil, err
	}

	loosenScalars(schema)
	compiled, err := compileSchema(stage, schema)
	if err != nil {
		return nil, err
	}

	return &decoder[T]{stage: stage, instructions: instructions, schema: compiled}, nil
}

func compileSchema(stage string, schema *jsonschema.Schema) (*validator.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", stage, err)
	}

	url := stage + ".schema.json"
	compiler := validator.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", stage, err)
	}

	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", stage, err)
	}
	return compiled, nil
}

// loosenScalars lets numeric and boolean properties arrive as strings. Models often
// quote them; the decode hook converts them back.
func loosenScalars(schema *jsonschema.Schema) {
	if schema == nil || schema.Properties == nil {
		return
	}

	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		switch prop.Type {
		case "number", "integer", "boolean":
			prop.OneOf = []*jsonschema.Schema{{Type: prop.Type}, {Type: "string"}}
			prop.Type = ""
		}
	}
}

// Decode extracts the JSON object from raw, validates it, and maps it onto T.
func (d *decoder[T]) Decode(raw string) (T, error) {
	var out T

	fail := func(err error) (T, error) {
		return out, &DecodeError{Stage: d.stage, Raw: raw, Err: err}
	}

	payload := extractJSON(raw)
	if payload == "" {
		return fail(errors.New("empty response"))
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return fail(err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return fail(fmt.Errorf("expected a JSON object, got %T", doc))
	}

	// Absent and null mean the same thing here.
	for k, v := range obj {
		if v == nil {
			delete(obj, k)
		}
	}

	if err := d.schema.Validate(obj); err != nil {
		return fail(err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       coerceHook,
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &out,
	})
	if err != nil {
		return fail(err)
	}
	if err := dec.Decode(obj); err != nil {
		return fail(err)
	}

	return out, nil
}

func coerceHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Bool:
		return coerceBool(data), nil
	case reflect.Float32, reflect.Float64:
		return coerceFloat(data), nil
	default:
		return data, nil
	}
}

// extractJSON strips markdown fences and surrounding prose from a model reply.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```JSON")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	trimmed = strings.Trim(strings.TrimSpace(trimmed), "`")

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}

	return strings.TrimSpace(trimmed)
}

func coerceBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return true
		}
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// coerceFloat returns NaN for values that carry no number.
func coerceFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
