// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing HTMX and JSON
// responses.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerReportUpdated adds the report:updated trigger with the row count.
func (b *HTMXResponseBuilder) TriggerReportUpdated(view View, rows int) *HTMXResponseBuilder {
	return b.Trigger("report:updated", map[string]any{"view": string(view), "rows": rows})
}

// PushURL makes htmx replace the browser location, keeping the filter
// state bookmarkable.
func (b *HTMXResponseBuilder) PushURL(url string) *HTMXResponseBuilder {
	return b.Header("HX-Push-Url", url)
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the response body as bytes.
func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// BodyJSON encodes v as the response body.
func (b *HTMXResponseBuilder) BodyJSON(v any) *HTMXResponseBuilder {
	body, err := json.Marshal(v)
	if err != nil {
		b.statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"encoding failed"}`)
	}
	b.headers["Content-Type"] = "application/json; charset=utf-8"
	b.body = body
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// MessageHTML renders an inline message box. The text is HTML-escaped.
func MessageHTML(kind NotificationType, text string) string {
	return `<div class="msg msg-` + string(kind) + `" role="status">` + template.HTMLEscapeString(text) + `</div>`
}

// MessageResponse creates a 200 response holding one inline message, so
// htmx swaps it into the target.
func MessageResponse(kind NotificationType, text string) *HTMXResponseBuilder {
	return NewHTMXResponse().BodyHTML(MessageHTML(kind, text))
}

// apiError is the JSON error body of the API endpoints.
type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// JSONError creates a JSON error response.
func JSONError(statusCode int, message, kind string) *HTMXResponseBuilder {
	return NewHTMXResponse().Status(statusCode).BodyJSON(apiError{Error: message, Kind: kind})
}
