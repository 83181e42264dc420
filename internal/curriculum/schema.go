package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const moduleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "title", "steps"],
  "properties": {
    "id":    {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
    "title": {"type": "string"},
    "order": {"type": "integer"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "kind"],
        "properties": {
          "id":    {"type": "string", "minLength": 1},
          "kind":  {"enum": ["activity", "video", "reflection", "quiz"]},
          "title": {"type": "string"},
          "quiz":  {"type": "string"}
        },
        "if":   {"properties": {"kind": {"const": "quiz"}}},
        "then": {"required": ["quiz"]},
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

const quizSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "questions"],
  "properties": {
    "id":             {"type": "string", "minLength": 1},
    "title":          {"type": "string"},
    "pass_threshold": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "kind", "prompt", "concepts"],
        "properties": {
          "id":          {"type": "string", "minLength": 1},
          "kind":        {"enum": ["mcq", "numeric", "select_all", "image_mcq"]},
          "prompt":      {"type": "string", "minLength": 1},
          "concepts":    {"type": "array", "minItems": 1, "uniqueItems": true, "items": {"type": "string", "minLength": 1}},
          "explanation": {"type": "string"},
          "options":     {"type": "array", "items": {"type": "string"}},
          "answer":      {"type": "string"},
          "answers":     {"type": "array", "minItems": 1, "items": {"type": "string"}},
          "target":      {"type": "number"},
          "tolerance":   {"type": "number", "minimum": 0},
          "unit":        {"type": "string"},
          "image_url":   {"type": "string"},
          "image_alt":   {"type": "string"}
        },
        "allOf": [
          {
            "if":   {"properties": {"kind": {"enum": ["mcq", "image_mcq"]}}},
            "then": {"required": ["options", "answer"]}
          },
          {
            "if":   {"properties": {"kind": {"const": "select_all"}}},
            "then": {"required": ["options", "answers"]}
          },
          {
            "if":   {"properties": {"kind": {"const": "numeric"}}},
            "then": {"required": ["target"]}
          },
          {
            "if":   {"properties": {"kind": {"const": "image_mcq"}}},
            "then": {"required": ["image_url"]}
          }
        ],
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var (
	moduleValidator = mustSchema(moduleSchema)
	quizValidator   = mustSchema(quizSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("curriculum schema: %v", err))
	}
	return s
}

// validate checks a decoded YAML document against a schema and joins every
// violation into one error.
func validate(schema *gojsonschema.Schema, doc any) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}
