package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Envelope wraps every /api response
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateRecordRequest is the body of POST /api/airtable
type CreateRecordRequest struct {
	Fields map[string]any `json:"fields"`
}

// UpdateRecordRequest is the body of PATCH /api/airtable
type UpdateRecordRequest struct {
	RecordID string         `json:"recordId"`
	Fields   map[string]any `json:"fields"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
}

// Validation messages returned with 400
const (
	MsgFieldsRequired         = "Fields are required"
	MsgRecordAndFieldsMissing = "recordId and fields are required"
	MsgRecordIDRequired       = "recordId is required"
	MsgInvalidBody            = "Invalid request body"
	MsgInvalidMaxRecords      = "maxRecords must be a positive integer"
)

// DefaultMaxRecords is used when the list request omits maxRecords
const DefaultMaxRecords = "10"

var startTime = time.Now()

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(Envelope{Success: true, Data: data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Envelope{Success: false, Error: message})
}
