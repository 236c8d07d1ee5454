// Package docs registers the Swagger document of the GOC Sync API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "http://www.nexconsult.com/support"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Estado do serviço e de suas dependências (banco, Redis, cache em memória)",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.HealthResponse"}}
                }
            }
        },
        "/health/live": {
            "get": {
                "description": "Verifica se o processo está respondendo",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/health/ready": {
            "get": {
                "description": "Verifica se o serviço está pronto para sincronizar",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "description": "Contadores das execuções recentes por tipo e estado do processo",
                "produces": ["application/json"],
                "tags": ["Metrics"],
                "summary": "Métricas das sincronizações",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MetricsResponse"}}}
            }
        },
        "/api/v1/sync/{kind}": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Executa a sincronização indicada sob o lock global e retorna o SyncRun finalizado",
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Executa uma sincronização",
                "parameters": [
                    {
                        "enum": ["registrations", "calendar", "stock", "users"],
                        "type": "string",
                        "description": "Tipo da sincronização",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StandardResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.StandardResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.StandardResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.StandardResponse"}}
                }
            }
        },
        "/api/v1/runs": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sync"],
                "summary": "Lista execuções recentes",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Quantidade máxima (padrão 20, máximo 100)",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StandardResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.StandardResponse"}}
                }
            }
        },
        "/api/v1/calendar/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Calendar"],
                "summary": "Estatísticas da última extração da agenda",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StandardResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.StandardResponse"}}
                }
            }
        },
        "/api/v1/users/recent": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Pacientes recentes da última extração",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StandardResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.StandardResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.MetricsResponse": {
            "type": "object",
            "properties": {
                "kinds": {"type": "object"},
                "goroutines": {"type": "integer"},
                "memory_mb": {"type": "number"},
                "timestamp": {"type": "string"}
            }
        },
        "models.ErrorDetails": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "SYNC_IN_PROGRESS"},
                "message": {"type": "string", "example": "Outra sincronização está em andamento"},
                "details": {}
            }
        },
        "models.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "timestamp": {"type": "string"},
                "version": {"type": "string", "example": "1.0.0"},
                "services": {
                    "type": "object",
                    "additionalProperties": {"$ref": "#/definitions/models.ServiceInfo"}
                },
                "uptime": {"type": "string", "example": "2h30m45s"}
            }
        },
        "models.ResponseMeta": {
            "type": "object",
            "properties": {
                "timestamp": {"type": "string"},
                "execution_time": {"type": "string", "example": "1.234s"},
                "request_id": {"type": "string"},
                "version": {"type": "string", "example": "v1"}
            }
        },
        "models.ServiceInfo": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "error": {"type": "string"}
            }
        },
        "models.StandardResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "success"},
                "message": {"type": "string", "example": "Sincronização concluída"},
                "data": {},
                "error": {"$ref": "#/definitions/models.ErrorDetails"},
                "meta": {"$ref": "#/definitions/models.ResponseMeta"}
            }
        },
        "models.SyncRun": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["registrations", "calendar", "stock", "users"]},
                "status": {"type": "string", "enum": ["running", "completed", "failed"]},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "total_new": {"type": "integer"},
                "registered": {"type": "integer"},
                "duplicates": {"type": "integer"},
                "errors": {"type": "integer"},
                "created": {"type": "integer"},
                "updated": {"type": "integer"},
                "duration_seconds": {"type": "number"},
                "error_message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "GOC Sync API",
	Description:      "Sincronização automatizada com o portal da clínica: cadastros, agenda, estoque e pacientes",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
