package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// htmxResponse builds HTMX responses: partial HTML bodies plus the
// HX-Trigger header that tells other page regions to refresh.
type htmxResponse struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

func newHTMXResponse() *htmxResponse {
	return &htmxResponse{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *htmxResponse) Status(code int) *htmxResponse {
	b.statusCode = code
	return b
}

// Trigger adds a named client event with optional payload.
func (b *htmxResponse) Trigger(name string, data any) *htmxResponse {
	b.triggers[name] = data
	return b
}

// TriggerExpenseChanged fires after an expense write so overview and
// trend regions reload for the affected month.
func (b *htmxResponse) TriggerExpenseChanged(event string, year, month int) *htmxResponse {
	return b.Trigger(event, map[string]int{"year": year, "month": month})
}

// TriggerFormReset tells the form to clear its inputs.
func (b *htmxResponse) TriggerFormReset() *htmxResponse {
	return b.Trigger("form:reset", struct{}{})
}

type notificationType string

const (
	notifySuccess notificationType = "success"
	notifyError   notificationType = "error"
)

// TriggerNotification shows a transient toast in the UI.
func (b *htmxResponse) TriggerNotification(kind notificationType, message string, durationMs int) *htmxResponse {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *htmxResponse) TriggerSuccess(message string) *htmxResponse {
	return b.TriggerNotification(notifySuccess, message, 3000)
}

func (b *htmxResponse) TriggerError(message string) *htmxResponse {
	return b.TriggerNotification(notifyError, message, 5000)
}

// BodyHTML sets an HTML body.
func (b *htmxResponse) BodyHTML(html string) *htmxResponse {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response.
func (b *htmxResponse) Write(w http.ResponseWriter) {
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

// htmxError builds an inline error fragment. The message is escaped.
func htmxError(statusCode int, message string) *htmxResponse {
	escaped := template.HTMLEscapeString(message)
	return newHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + escaped + `</div>`)
}
