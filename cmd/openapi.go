package cmd

import "net/http"

// Minimal OpenAPI document served at /openapi.json.
func serveOpenapi(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openapiSpec))
}

const openapiSpec = `{
  "openapi": "3.0.0",
  "info": { "title": "fsbrowse API", "version": "1.0.0" },
  "components": {
    "parameters": {
      "path": { "in": "query", "name": "path", "required": true, "schema": {"type": "string"}, "description": "Absolute filesystem path" }
    },
    "responses": {
      "BadRequest": { "description": "Missing parameter or invalid request; body is {\"error\": string}" },
      "NotFound": { "description": "Path or snapshot does not exist; body is {\"error\": string}" },
      "Failed": { "description": "Operating system error; body is {\"error\": string}" }
    }
  },
  "paths": {
    "/entry": { "get": { "summary": "Describe one path", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "Entry; children is null for files and [] for directories"}, "404": {"$ref": "#/components/responses/NotFound"} } } },
    "/list": { "get": { "summary": "List immediate children", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "Array of entries"}, "404": {"$ref": "#/components/responses/NotFound"}, "500": {"$ref": "#/components/responses/Failed"} } } },
    "/list/bounded": { "get": { "summary": "List children plus depth further levels", "parameters": [{ "$ref": "#/components/parameters/path" }, { "in": "query", "name": "depth", "schema": {"type": "integer", "minimum": 0, "default": 0} }], "responses": { "200": {"description": "Array of nested entries"}, "400": {"$ref": "#/components/responses/BadRequest"}, "404": {"$ref": "#/components/responses/NotFound"} } } },
    "/list/recursive": { "get": { "summary": "List the whole subtree", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "Array of nested entries"}, "404": {"$ref": "#/components/responses/NotFound"} } } },
    "/read": { "get": { "summary": "Read a UTF-8 text file", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "File content as a JSON string"}, "400": {"$ref": "#/components/responses/BadRequest"}, "404": {"$ref": "#/components/responses/NotFound"} } } },
    "/open": { "post": { "summary": "Open a path with the platform launcher", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "Launched"}, "500": {"$ref": "#/components/responses/Failed"} } } },
    "/rename": { "post": { "summary": "Rename or move a path", "parameters": [{ "in": "query", "name": "from", "required": true, "schema": {"type": "string"} }, { "in": "query", "name": "to", "required": true, "schema": {"type": "string"} }], "responses": { "200": {"description": "OK"}, "404": {"$ref": "#/components/responses/NotFound"} } } },
    "/dir": {
      "post": { "summary": "Create a directory (parent must exist)", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "OK"}, "404": {"$ref": "#/components/responses/NotFound"}, "500": {"$ref": "#/components/responses/Failed"} } },
      "delete": { "summary": "Remove an empty directory", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "OK"}, "404": {"$ref": "#/components/responses/NotFound"}, "500": {"$ref": "#/components/responses/Failed"} } }
    },
    "/file": {
      "post": { "summary": "Create or truncate a file", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "OK"}, "404": {"$ref": "#/components/responses/NotFound"} } },
      "delete": { "summary": "Remove a file", "parameters": [{ "$ref": "#/components/parameters/path" }], "responses": { "200": {"description": "OK"}, "404": {"$ref": "#/components/responses/NotFound"}, "500": {"$ref": "#/components/responses/Failed"} } }
    },
    "/snapshot": { "post": { "summary": "Store a walk of path in the snapshot database", "parameters": [{ "$ref": "#/components/parameters/path" }, { "in": "query", "name": "mode", "schema": {"type": "string", "enum": ["flat", "bounded", "recursive"]} }, { "in": "query", "name": "depth", "schema": {"type": "integer", "minimum": 0} }], "responses": { "202": {"description": "Started"}, "400": {"$ref": "#/components/responses/BadRequest"}, "404": {"$ref": "#/components/responses/NotFound"}, "409": {"description": "Another job is running"} } } },
    "/snapshots": { "get": { "summary": "List stored snapshots, newest first", "parameters": [{ "in": "query", "name": "limit", "schema": {"type": "integer", "default": 100} }], "responses": { "200": {"description": "Array of snapshot summaries"} } } },
    "/snapshots/tree": { "get": { "summary": "Stored snapshot as an entry tree", "parameters": [{ "in": "query", "name": "id", "schema": {"type": "string"}, "description": "Snapshot id; latest when omitted" }], "responses": { "200": {"description": "Array of nested entries"}, "404": {"$ref": "#/components/responses/NotFound"} } } },
    "/vacuum": { "post": { "summary": "Reclaim disk space (VACUUM)", "responses": { "202": {"description": "Started"}, "409": {"description": "Another job is running"} } } },
    "/status": { "get": { "summary": "Daemon status, snapshot stats and memory usage", "responses": { "200": {"description": "Status"} } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": {"description": "Text exposition format"} } } }
  }
}`
