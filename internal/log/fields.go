package log

import (
	"maps"
	"net/http"
	"slices"
	"time"
)

// Attribute keys.
const (
	FieldComponent       = "component"
	FieldRequestID       = "request_id"
	FieldClientIP        = "client_ip"
	FieldMethod          = "method"
	FieldPath            = "path"
	FieldQuery           = "query"
	FieldStatus          = "status"
	FieldDuration        = "duration_ms"
	FieldUserAgent       = "user_agent"
	FieldError           = "error"
	FieldOperation       = "operation"
	FieldUserID          = "user_id"
	FieldEmail           = "email"
	FieldTransactionID   = "transaction_id"
	FieldTransactionType = "transaction_type"
	FieldAmountCents     = "amount_cents"
	FieldCategory        = "category"
	FieldCount           = "count"
	FieldBackend         = "backend"
)

const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentTransaction = "transaction"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentMirror      = "mirror"
	ComponentSheets      = "sheets"
	ComponentSecurity    = "security"
	ComponentRateLimit   = "rate_limit"
	ComponentBackend     = "backend"
	ComponentAuth        = "auth"
	ComponentLiveSync    = "livesync"
	ComponentReport      = "report"
)

const (
	OpCreate = "create"
	OpSync   = "sync"
)

// LogFields collects the attributes of one record. Empty strings are
// dropped.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) set(key string, v any) LogFields {
	if s, ok := v.(string); ok && s == "" {
		return f
	}
	f[key] = v
	return f
}

func (f LogFields) WithRequestID(id string) LogFields { return f.set(FieldRequestID, id) }

func (f LogFields) WithClientIP(ip string) LogFields { return f.set(FieldClientIP, ip) }

func (f LogFields) WithOperation(op string) LogFields { return f.set(FieldOperation, op) }

func (f LogFields) WithUser(userID string) LogFields { return f.set(FieldUserID, userID) }

func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return f.set(FieldError, err.Error())
}

// WithTransaction identifies a stored record. The description never goes
// to the log.
func (f LogFields) WithTransaction(id, typ string, amountCents int64, category string) LogFields {
	return f.set(FieldTransactionID, id).
		set(FieldTransactionType, typ).
		set(FieldAmountCents, amountCents).
		set(FieldCategory, category)
}

// WithHTTP records the request line and how it was answered.
func (f LogFields) WithHTTP(r *http.Request, status int, elapsed time.Duration) LogFields {
	return f.set(FieldMethod, r.Method).
		set(FieldPath, r.URL.Path).
		set(FieldQuery, r.URL.RawQuery).
		set(FieldUserAgent, r.UserAgent()).
		set(FieldStatus, status).
		set(FieldDuration, elapsed.Milliseconds())
}

// ToSlice flattens the fields in key order for slog.
func (f LogFields) ToSlice() []any {
	out := make([]any, 0, len(f)*2)
	for _, k := range slices.Sorted(maps.Keys(f)) {
		out = append(out, k, f[k])
	}
	return out
}
