// Package docs registers the Swagger document served under /swagger.
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
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/onenote/signin": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["OneNote"],
                "summary": "OneNote 登录地址",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/onenote/callback": {
            "get": {
                "produces": ["application/json"],
                "tags": ["OneNote"],
                "summary": "OneNote OAuth 回调",
                "parameters": [
                    {"type": "string", "name": "code", "in": "query", "required": true},
                    {"type": "string", "name": "state", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/onenote/signout": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["OneNote"],
                "summary": "退出 OneNote",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/grades/{gradeId}": {
            "put": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "创建或更新成绩",
                "parameters": [{"type": "integer", "name": "gradeId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/grades/{gradeId}/feedback/sync": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["反馈"],
                "summary": "同步 OneNote 反馈",
                "parameters": [{"type": "integer", "name": "gradeId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "401": {"description": "需要登录 OneNote", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/util.Response"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/grades/{gradeId}/feedback/summary": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["反馈"],
                "summary": "反馈摘要",
                "parameters": [
                    {"type": "integer", "name": "gradeId", "in": "path", "required": true},
                    {"type": "integer", "name": "max", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/grades/{gradeId}/feedback/empty": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["反馈"],
                "summary": "反馈是否为空",
                "parameters": [{"type": "integer", "name": "gradeId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/grades/{gradeId}/feedback/files": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["反馈"],
                "summary": "反馈文件列表",
                "parameters": [{"type": "integer", "name": "gradeId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/grades/{gradeId}/feedback/form": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["反馈"],
                "summary": "评分表单中的 OneNote 操作",
                "parameters": [
                    {"type": "integer", "name": "gradeId", "in": "path", "required": true},
                    {"type": "integer", "name": "userId", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/feedback/files/{fileId}/download": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/zip"],
                "tags": ["反馈"],
                "summary": "下载反馈文件",
                "parameters": [{"type": "string", "name": "fileId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/util.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.Response"}}
                }
            }
        },
        "/feedback/areas": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["反馈"],
                "summary": "反馈文件区",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/feedback/areas/copy": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "复制文件区",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/assignments/{assignmentId}": {
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "删除作业",
                "parameters": [{"type": "integer", "name": "assignmentId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        },
        "/assignments/{assignmentId}/links/{userId}": {
            "put": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "设置 OneNote 页面映射",
                "parameters": [
                    {"type": "integer", "name": "assignmentId", "in": "path", "required": true},
                    {"type": "integer", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.Response"}}}
            }
        }
    },
    "definitions": {
        "util.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "OneNote 作业反馈 API",
	Description:      "将教师的 OneNote 反馈页面同步为作业成绩的反馈文件。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
