package logger

import (
	"io"
	"regexp"
)

// rule pairs a pattern with its replacement. Replacements may reference
// capture groups so key=value secrets keep their key visible.
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor scrubs credentials from log output before it reaches a sink.
type Redactor struct {
	rules []rule
}

// NewRedactor covers the secrets this daemon actually handles: provider API
// keys, the Authorization headers used for identity derivation, browser
// cookies surfaced in page diagnostics, and key/value secrets from config
// dumps.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			// Provider API keys (Anthropic, OpenAI).
			{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{16,}`), "[REDACTED]"},
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{16,}`), "[REDACTED]"},

			// Credentials forwarded by callers. These are hashed into pool
			// keys and must never land in logs verbatim.
			{regexp.MustCompile(`(?i)(authorization["'\s:=]+)(?:basic|bearer)?\s*[a-zA-Z0-9._~+/=-]+`), "${1}[REDACTED]"},
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`), "Bearer [REDACTED]"},

			// Cookies captured from browser sessions.
			{regexp.MustCompile(`(?i)((?:set-)?cookie["'\s:=]+)[^\s"';]+`), "${1}[REDACTED]"},

			// Key/value secrets in config dumps and request logs.
			{regexp.MustCompile(`(?i)(api_key["'\s:=]+)[^\s"',}]+`), "${1}[REDACTED]"},
			{regexp.MustCompile(`(?i)(password["'\s:=]+)[^\s"',}]+`), "${1}[REDACTED]"},
			{regexp.MustCompile(`(?i)(pwd["'\s:=]+)[^\s"',}]+`), "${1}[REDACTED]"},
			{regexp.MustCompile(`(?i)(token["'\s:=]+)[a-zA-Z0-9._~+/=-]{16,}`), "${1}[REDACTED]"},
			{regexp.MustCompile(`(?i)(secret["'\s:=]+)[^\s"',}]+`), "${1}[REDACTED]"},

			// Cloud access key ids.
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED]"},
		},
	}
}

// AddPattern registers an extra pattern whose matches are replaced whole.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re, "[REDACTED]"})
	return nil
}

// Redact applies every rule to s in order.
func (r *Redactor) Redact(s string) string {
	for _, ru := range r.rules {
		s = ru.re.ReplaceAllString(s, ru.repl)
	}
	return s
}

// Wrap returns a writer that redacts each write before forwarding it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{out: w, redactor: r}
}

type redactingWriter struct {
	out      io.Writer
	redactor *Redactor
}

// Write reports len(p) on success even though the forwarded bytes may be
// shorter, so wrapping writers do not see a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.out.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
