// Package doctor validates linerelay configuration without starting the
// service.
package doctor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/linerelay/internal/config"
	"github.com/mattjoyce/linerelay/internal/history"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded (unvalidated) configuration.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateCredentials(r)
	d.validateCompletion(r)
	d.validateRelay(r)
	d.validateService(r)
	d.validateState(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkSecret reports a required credential that is empty or still holds a
// ${VAR} placeholder.
func (d *Doctor) checkSecret(r *Result, category, field, value, hint string) {
	if value == "" {
		d.addError(r, category, field, fmt.Sprintf("%s is required (set %s)", field, hint))
		return
	}
	if name := config.UnresolvedEnvVar(value); name != "" {
		d.addError(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", name))
	}
}

func (d *Doctor) validateCredentials(r *Result) {
	d.checkSecret(r, "line", "line.channel_secret", d.cfg.LINE.ChannelSecret, "ChannelSecret or LINE_CHANNEL_SECRET")
	d.checkSecret(r, "line", "line.channel_access_token", d.cfg.LINE.ChannelAccessToken, "ChannelAccessToken or LINE_CHANNEL_ACCESS_TOKEN")
}

func (d *Doctor) validateCompletion(r *Result) {
	c := d.cfg.Completion
	switch strings.ToLower(c.Provider) {
	case "openai", "anthropic":
	default:
		d.addError(r, "completion", "completion.provider",
			fmt.Sprintf("unknown provider %q (want openai or anthropic)", c.Provider))
		return
	}

	d.checkSecret(r, "completion", "completion.api_key", c.APIKey, config.APIKeyEnv(c.Provider))

	if c.Model == "" {
		d.addWarning(r, "completion", "completion.model", "model not set; the provider default will be used")
	}
	if c.MaxTokens < 0 {
		d.addError(r, "completion", "completion.max_tokens", "max_tokens must not be negative")
	}
	if c.Timeout < 0 {
		d.addError(r, "completion", "completion.timeout", "timeout must not be negative")
	}
	// A delivery may wait one timeout for its conversation, then spend
	// another on its own call before replying.
	if wt := d.cfg.Service.WriteTimeout; wt > 0 {
		if worst := 2*c.Timeout + d.cfg.LINE.ReplyTimeout; worst >= wt {
			d.addWarning(r, "completion", "completion.timeout",
				fmt.Sprintf("worst-case delivery time %s is not shorter than service.write_timeout %s; slow completions will be cut off", worst, wt))
		}
	}
}

func (d *Doctor) validateRelay(r *Result) {
	if _, err := history.ParseMode(d.cfg.Relay.History); err != nil {
		d.addError(r, "relay", "relay.history", err.Error())
	}
	if d.cfg.Relay.FallbackMessage == "" {
		d.addWarning(r, "relay", "relay.fallback_message",
			"no fallback message; provider failures fail the delivery and the platform may redeliver it")
	}
}

func (d *Doctor) validateService(r *Result) {
	s := d.cfg.Service
	if s.Listen == "" {
		d.addError(r, "service", "service.listen", "listen address is required")
	}
	if !strings.HasPrefix(s.CallbackPath, "/") {
		d.addError(r, "service", "service.callback_path",
			fmt.Sprintf("callback path %q must start with /", s.CallbackPath))
	} else if s.CallbackPath == config.HealthPath {
		d.addError(r, "service", "service.callback_path",
			fmt.Sprintf("callback path must not be %s", config.HealthPath))
	}
	if _, err := config.ParseByteSize(s.MaxBodySize); err != nil {
		d.addError(r, "service", "service.max_body_size",
			fmt.Sprintf("invalid size %q: %v", s.MaxBodySize, err))
	}
}

func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addWarning(r, "state", "state.path",
			"event ledger disabled; redelivered events will be answered again")
		return
	}
	if d.cfg.State.EventRetention <= 0 {
		d.addError(r, "state", "state.event_retention", "event_retention must be positive")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
