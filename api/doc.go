// Package api provides OpenAPI/Swagger documentation for the Overseer API.
//
// # API Overview
//
// Overseer exposes a RESTful API for:
//   - Starting, querying, resuming, and cancelling orchestration threads
//   - Listing and resolving human approval requests
//   - Streaming approval lifecycle events over WebSocket
//   - Health, readiness, and Prometheus metrics
//
// # Authentication
//
// When a JWT secret or public key is configured, endpoints expect a
// Bearer token:
//
//	Authorization: Bearer <token>
//
// Otherwise static API keys are accepted via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Health and metrics endpoints are always unauthenticated.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # OpenAPI Specification
//
// The OpenAPI 3.0 specification lives at api/openapi.yaml. To regenerate
// the Swagger documentation:
//
//	swag init -g cmd/overseer/main.go -o api --parseDependency --parseInternal
//
// or use the make targets docs-swagger / docs-serve (Swagger UI on
// http://localhost:8081).
package api
