package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"outlay/internal/core"
)

// pathID parses the {id} wildcard of the matched route as a UUID.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed id: %w", err)
	}
	return id, nil
}

// parseDateRange reads the required start and end query parameters
// (YYYY-MM-DD).
func parseDateRange(query url.Values) (start, end core.Date, err error) {
	start, err = core.ParseDate(query.Get("start"))
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("malformed start date: %w", err)
	}
	end, err = core.ParseDate(query.Get("end"))
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("malformed end date: %w", err)
	}
	return start, end, nil
}

// parseYear reads the year query parameter, defaulting to the current
// year when absent.
func parseYear(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("year"))
	if v == "" {
		return time.Now().Year(), nil
	}
	year, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("malformed year %q", v)
	}
	return year, nil
}

// decodeJSON reads the request body into dst, rejecting unknown fields
// so typos in payloads surface as 400s instead of silent zero values.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

// bodyParser reads a request body once and answers key lookups whether
// the client sent JSON or form-encoded data. The UI handlers use it
// because HTMX posts forms while scripted clients post JSON to the same
// routes.
type bodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	err      error
}

func newBodyParser(r *http.Request) *bodyParser {
	p := &bodyParser{}
	p.body, p.err = io.ReadAll(r.Body)
	if p.err != nil {
		return p
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return p
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal(p.body, &p.jsonData)
		return p
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p
}

// Get returns the sanitized string value for key, "" when absent.
func (p *bodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

func (p *bodyParser) Err() error {
	return p.err
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
