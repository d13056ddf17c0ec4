package domain

import "time"

// SourceKind identifies a concrete SourceAdapter variant (spec §4.1, §9
// "Polymorphism via capabilities").
type SourceKind string

const (
	SourceREST SourceKind = "rest"
	SourceWS   SourceKind = "ws"
	SourceSQL  SourceKind = "sql"
	SourceFile SourceKind = "file"
)

// AuthKind identifies a SourceConfig's authentication mechanism.
type AuthKind string

const (
	AuthNone       AuthKind = "none"
	AuthAPIKey     AuthKind = "api_key"
	AuthOAuth2     AuthKind = "oauth2"
	AuthClientCert AuthKind = "client_cert"
)

// AuthConfig configures a SourceAdapter's authentication.
type AuthConfig struct {
	Kind AuthKind

	// api_key
	HeaderName string
	APIKey     string

	// oauth2 (client-credentials)
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string

	// client_cert
	CertFile string
	KeyFile  string
	CAFile   string
}

// RateLimitConfig is a SourceConfig's (calls, period) window contract
// (spec §4.1 "Token-bucket equivalent").
type RateLimitConfig struct {
	Calls  int
	Period time.Duration
}

// RetryConfig configures a SourceAdapter's per-request retry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultSourceRetryConfig matches spec §4.1's stated defaults.
func DefaultSourceRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, Multiplier: 2}
}

// ValidationRuleKind tags a SourceConfig-local validation rule's payload
// shape (spec §9 "tagged variants", not free-form maps).
type ValidationRuleKind string

const (
	ValidationNumeric     ValidationRuleKind = "numeric"
	ValidationCategorical ValidationRuleKind = "categorical"
	ValidationBinary      ValidationRuleKind = "binary"
)

// AdapterValidationRule is one of the three tagged rule shapes an adapter
// checks a raw value against before it ever reaches the Validator pipeline.
type AdapterValidationRule struct {
	Kind ValidationRuleKind

	// numeric
	Min float64
	Max float64

	// categorical
	Allowed []string
}

// NormalizationRuleKind tags a SourceConfig-local normalization rule.
type NormalizationRuleKind string

const (
	NormalizationNumeric     NormalizationRuleKind = "numeric"
	NormalizationCategorical NormalizationRuleKind = "categorical"
)

// AdapterNormalizationRule is one of the two tagged normalization shapes.
type AdapterNormalizationRule struct {
	Kind NormalizationRuleKind

	// numeric
	Scale   float64
	Decimals int

	// categorical
	Mapping map[string]string
}

// SourceConfig describes one data source a task fans out to (spec §3).
type SourceConfig struct {
	SourceID     string
	Kind         SourceKind
	Endpoint     string
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	CacheTTL     time.Duration
	Timeout      time.Duration
	Retry        RetryConfig
	Validation   []AdapterValidationRule
	Normalize    []AdapterNormalizationRule
	ValuePath    string // optional JSONPath for REST nested-field extraction
	Query        string // SQL adapter's query text
	Weight       float64
}

// ValueKind tags a DataPoint's value payload shape.
type ValueKind string

const (
	ValueNumeric     ValueKind = "numeric"
	ValueCategorical ValueKind = "categorical"
	ValueBoolean     ValueKind = "boolean"
)

// DataPoint is one fetch result from one adapter (spec §3).
type DataPoint struct {
	SourceID   string
	SourceType SourceKind
	ValueKind  ValueKind
	Numeric    float64
	Categorical string
	Boolean    bool
	Timestamp  time.Time
	Metadata   map[string]interface{}
	Signature  []byte
}

// NumericValue returns the point's value as a float64 regardless of its
// tagged kind, used by the validator/aggregator which operate numerically.
func (d DataPoint) NumericValue() float64 {
	switch d.ValueKind {
	case ValueBoolean:
		if d.Boolean {
			return 1
		}
		return 0
	default:
		return d.Numeric
	}
}
