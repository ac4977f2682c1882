package http

import (
	"encoding/json"
	"strings"
)

// RedactedPlaceholder replaces the value of every configured PII key
const RedactedPlaceholder = "[REDACTED]"

// DefaultPIIKeys are redacted when no keys are configured
var DefaultPIIKeys = []string{"vendor_tax_id", "bank_account", "vendor_email", "buyer_email"}

// Redactor replaces PII values in response bodies, matching keys case-insensitively
type Redactor struct {
	keys map[string]struct{}
}

// NewRedactor creates a redactor for keys
func NewRedactor(keys []string) *Redactor {
	r := &Redactor{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			r.keys[k] = struct{}{}
		}
	}
	return r
}

// Redact round-trips v through JSON and blanks configured keys at any depth
func (r *Redactor) Redact(v interface{}) (interface{}, error) {
	if v == nil || len(r.keys) == 0 {
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return r.walk(generic), nil
}

func (r *Redactor) walk(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if _, ok := r.keys[strings.ToLower(k)]; ok {
				t[k] = RedactedPlaceholder
				continue
			}
			t[k] = r.walk(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = r.walk(val)
		}
		return t
	default:
		return v
	}
}
