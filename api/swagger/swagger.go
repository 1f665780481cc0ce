package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Carnet Comunitario API",
        "description": "Intake, approval and credential delivery for entrepreneur and pet registrations",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {"BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}},
    "tags": [
        {"name": "Webhook", "description": "Form ingestion and delivery status"},
        {"name": "Authentication", "description": "Operator authentication"},
        {"name": "Users", "description": "Back-office accounts"},
        {"name": "Requests", "description": "Request review, approval and exports"}
    ],
    "paths": {
        "/webhook/requests": {
            "post": {
                "tags": ["Webhook"],
                "summary": "Ingest a form submission",
                "parameters": [
                    {"name": "X-Webhook-Token", "in": "header", "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "additionalProperties": {}}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Bad token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/webhook/test": {
            "get": {
                "tags": ["Webhook"],
                "summary": "Echo webhook payload",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/webhook/status": {
            "get": {
                "tags": ["Webhook"],
                "summary": "Delivery activity over the trailing window",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/WebhookStatus"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Issue access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Re-issue access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/auth/profile": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current claims",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/users": {
            "post": {
                "tags": ["Users"],
                "summary": "Create operator or admin",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate email", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List requests",
                "parameters": [
                    {"name": "state", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "origin", "in": "query", "type": "string"},
                    {"name": "email", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Create request manually",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/requests/stats": {
            "get": {
                "tags": ["Requests"],
                "summary": "Request statistics",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/requests/months": {
            "get": {
                "tags": ["Requests"],
                "summary": "Months holding requests",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/requests/export": {
            "get": {
                "tags": ["Requests"],
                "summary": "Export monthly details",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string", "required": true},
                    {"name": "year", "in": "query", "type": "integer", "required": true},
                    {"name": "month", "in": "query", "type": "integer", "required": true},
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Attachment", "schema": {"type": "file"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ],
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "text/csv"]
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get request with detail and delivery attempts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            },
            "delete": {
                "tags": ["Requests"],
                "summary": "Delete request and its history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        },
        "/requests/{id}/state": {
            "patch": {
                "tags": ["Requests"],
                "summary": "Change request state",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                },
                "security": [
                    {"BearerAuth": []}
                ]
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}},
            "required": ["email", "password"]
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "OPERATOR"]}
            },
            "required": ["email", "password", "full_name", "role"]
        },
        "CreateRequestPayload": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["entrepreneur", "pet"]},
                "contact_email": {"type": "string"},
                "detail": {"type": "object", "additionalProperties": {}}
            },
            "required": ["type", "detail"]
        },
        "TransitionPayload": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "enum": ["pending", "approved", "rejected"]}
            },
            "required": ["state"]
        },
        "DeliveryAttempt": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "request_id": {"type": "integer"},
                "recipient_email": {"type": "string"},
                "attempted_at": {"type": "string"},
                "outcome": {"type": "string", "enum": ["success", "failure"]},
                "error_detail": {"type": "string"}
            }
        },
        "WebhookStatus": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "successful": {"type": "integer"},
                "failed": {"type": "integer"},
                "last_attempt_at": {"type": "string"},
                "window_hours": {"type": "number"},
                "since": {"type": "string"},
                "webhook_url": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "detail": {"type": "string"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
