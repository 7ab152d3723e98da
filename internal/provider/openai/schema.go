package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const reportSchemaURL = "insight-engine://report.schema.json"

// reportSchema is deliberately lenient on optional content: research often lacks numbers
const reportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["companyName", "summary"],
  "definitions": {
    "nullableString": { "type": ["string", "null"] },
    "nullableNumber": { "type": ["number", "null"] },
    "sourceIds": { "type": ["array", "null"], "items": { "type": "integer", "minimum": 1 } },
    "citedPoints": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["point"],
        "properties": {
          "point": { "type": "string" },
          "source_ids": { "$ref": "#/definitions/sourceIds" }
        }
      }
    }
  },
  "properties": {
    "companyName": { "type": "string" },
    "summary": { "type": "string" },
    "insightScore": {
      "type": ["object", "null"],
      "properties": {
        "score": { "type": ["number", "null"], "minimum": 0, "maximum": 100 },
        "rationale": { "$ref": "#/definitions/nullableString" }
      }
    },
    "valuation": {
      "type": ["object", "null"],
      "properties": {
        "low": { "$ref": "#/definitions/nullableNumber" },
        "high": { "$ref": "#/definitions/nullableNumber" },
        "currency": { "$ref": "#/definitions/nullableString" },
        "narrative": { "$ref": "#/definitions/nullableString" }
      }
    },
    "swotAnalysis": {
      "type": ["object", "null"],
      "properties": {
        "strengths": { "$ref": "#/definitions/citedPoints" },
        "weaknesses": { "$ref": "#/definitions/citedPoints" },
        "opportunities": { "$ref": "#/definitions/citedPoints" },
        "threats": { "$ref": "#/definitions/citedPoints" }
      }
    },
    "marketAnalysis": {
      "type": ["object", "null"],
      "properties": {
        "narrative": { "$ref": "#/definitions/nullableString" },
        "marketSize": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "metric": { "$ref": "#/definitions/nullableString" },
              "value": { "$ref": "#/definitions/nullableNumber" },
              "year": { "type": ["integer", "null"] },
              "source_ids": { "$ref": "#/definitions/sourceIds" }
            }
          }
        }
      }
    },
    "competitorLandscape": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["competitorName"],
        "properties": {
          "competitorName": { "type": "string" },
          "funding": { "$ref": "#/definitions/nullableString" },
          "keyDifferentiator": { "$ref": "#/definitions/nullableString" },
          "source_ids": { "$ref": "#/definitions/sourceIds" }
        }
      }
    },
    "teamAnalysis": { "$ref": "#/definitions/nullableString" },
    "sources": { "type": ["array", "null"] }
  }
}`

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func loadReportSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(reportSchemaURL, bytes.NewReader([]byte(reportSchema))); err != nil {
			compileErr = fmt.Errorf("add report schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(reportSchemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateReport checks raw report JSON against the report schema
func ValidateReport(raw []byte) error {
	schema, err := loadReportSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("report is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("report does not match schema: %w", err)
	}
	return nil
}
