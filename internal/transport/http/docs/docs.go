// Package docs registers the OpenAPI document served at /openapi.json.
// The template follows the layout produced by swag init.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Ops"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/v1/detect": {
            "post": {
                "description": "Fetches the image by storage key (or explicit URL) and returns normalized detections with a per-label summary.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Detection"],
                "summary": "Detect findings in a stored image",
                "parameters": [
                    {"description": "Image reference", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/detect.ReferenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/detection.Outcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/v1/detect/upload": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Detection"],
                "summary": "Detect findings in an uploaded image",
                "parameters": [
                    {"type": "file", "description": "Image file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/detection.Outcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/v1/quality": {
            "post": {
                "description": "Accepts a multipart \"file\" or a JSON image reference. Unusable images return pass=false with reasons, not an error.",
                "consumes": ["multipart/form-data", "application/json"],
                "produces": ["application/json"],
                "tags": ["Detection"],
                "summary": "Check image quality",
                "parameters": [
                    {"type": "file", "description": "Image file", "name": "file", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/detect.QualityResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/v1/report/generate": {
            "post": {
                "description": "Failures are always returned as errors; a report is never replaced by an empty one.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Report"],
                "summary": "Generate a screening report",
                "parameters": [
                    {"description": "Findings and context", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/report.Request"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/report.Outcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/v1/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Ops"],
                "summary": "Recent runs",
                "parameters": [
                    {"type": "integer", "description": "Maximum records (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.APIResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "detect.ReferenceRequest": {
            "type": "object",
            "properties": {
                "image_url": {"type": "string", "example": "https://cdn.example.com/a1.jpg"},
                "storage_key": {"type": "string", "example": "uploads/2026/10/a1.jpg"}
            }
        },
        "detect.QualityResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "pass": {"type": "boolean"},
                "score": {"type": "number"},
                "reasons": {"type": "array", "items": {"type": "string"}},
                "width": {"type": "integer"},
                "height": {"type": "integer"}
            }
        },
        "detection.BoundingBox": {
            "type": "object",
            "properties": {
                "x": {"type": "number"},
                "y": {"type": "number"},
                "w": {"type": "number"},
                "h": {"type": "number"}
            }
        },
        "detection.Detection": {
            "type": "object",
            "properties": {
                "label": {"type": "string", "enum": ["caries", "tartar", "oral_cancer", "normal"]},
                "confidence": {"type": "number"},
                "bbox": {"$ref": "#/definitions/detection.BoundingBox"}
            }
        },
        "detection.LabelSummary": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "max_score": {"type": "number"},
                "area_ratio": {"type": "number"}
            }
        },
        "detection.Failure": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "detection.Outcome": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "detections": {"type": "array", "items": {"$ref": "#/definitions/detection.Detection"}},
                "summary": {"type": "object", "additionalProperties": {"$ref": "#/definitions/detection.LabelSummary"}},
                "class_table_version": {"type": "string"},
                "degraded": {"type": "boolean"},
                "failure": {"$ref": "#/definitions/detection.Failure"}
            }
        },
        "report.Finding": {
            "type": "object",
            "properties": {
                "present": {"type": "boolean"},
                "count": {"type": "integer"},
                "area_ratio": {"type": "number"},
                "max_score": {"type": "number"}
            }
        },
        "report.ClassifierResult": {
            "type": "object",
            "properties": {
                "suspect": {"type": "boolean"},
                "prob": {"type": "number"}
            }
        },
        "report.Action": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "priority": {"type": "string"}
            }
        },
        "report.Overall": {
            "type": "object",
            "properties": {
                "level": {"type": "string"},
                "recommended_actions": {"type": "array", "items": {"$ref": "#/definitions/report.Action"}},
                "safety_flags": {"type": "object", "additionalProperties": {"type": "boolean"}}
            }
        },
        "report.Request": {
            "type": "object",
            "properties": {
                "findings": {"type": "object", "additionalProperties": {"$ref": "#/definitions/report.Finding"}},
                "classifier": {"type": "object", "additionalProperties": {"$ref": "#/definitions/report.ClassifierResult"}},
                "survey": {"type": "object"},
                "history": {"type": "object"},
                "overall": {"$ref": "#/definitions/report.Overall"},
                "disclaimer_version": {"type": "string", "example": "v1.0"},
                "language": {"type": "string", "enum": ["ko", "en"]}
            }
        },
        "report.Outcome": {
            "type": "object",
            "properties": {
                "summary": {"type": "string"},
                "details": {"type": "string"},
                "disclaimer": {"type": "string"},
                "language": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "DentiCheck Detection API",
	Description:      "Dental image detection and screening report generation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
