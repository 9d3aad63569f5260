// severity.go defines the runtime severity bitmask and the classification table.

package errtrap

import (
	"fmt"
	"strings"
)

// Severity is a bitmask of runtime-signaled error severities.
type Severity int

const (
	SeverityError Severity = 1 << iota
	SeverityWarning
	SeverityParse
	SeverityNotice
	SeverityCoreError
	SeverityCoreWarning
	SeverityCompileError
	SeverityCompileWarning
	SeverityUserError
	SeverityUserWarning
	SeverityUserNotice
	SeverityStrict
	SeverityRecoverableError
	SeverityDeprecated
	SeverityUserDeprecated

	// SeverityAll selects every severity above.
	SeverityAll Severity = 1<<15 - 1
)

// UnknownCategory is returned by Classify for codes missing from the table.
const UnknownCategory = "Unknown error"

var categories = map[int]string{
	int(SeverityError):            "Fatal Error",
	int(SeverityWarning):          "Warning",
	int(SeverityParse):            "Parse error",
	int(SeverityNotice):           "Notice",
	int(SeverityCoreError):        "Core Error",
	int(SeverityCoreWarning):      "Core Warning",
	int(SeverityCompileError):     "Compile Error",
	int(SeverityCompileWarning):   "Compile Warning",
	int(SeverityUserError):        "User Error",
	int(SeverityUserWarning):      "User Warning",
	int(SeverityUserNotice):       "User Notice",
	int(SeverityStrict):           "Strict Notice",
	int(SeverityRecoverableError): "Recoverable Error",
	int(SeverityDeprecated):       "Deprecated Notice",
	int(SeverityUserDeprecated):   "User Deprecated Notice",
	int(SeverityAll):              "All Errors",
}

// Classify maps a raw code to its category name. Only exact table entries
// match; combined masks are not decomposed.
func Classify(code int) string {
	if name, ok := categories[code]; ok {
		return name
	}
	return UnknownCategory
}

// String returns the category name of s.
func (s Severity) String() string {
	return Classify(int(s))
}

// Fatal reports whether s can never reach a runtime-signal hook. Hosts
// record these in their last-error slot and abort the request instead.
func (s Severity) Fatal() bool {
	const fatal = SeverityError | SeverityParse | SeverityCoreError |
		SeverityCoreWarning | SeverityCompileError | SeverityCompileWarning
	return s != 0 && s&^fatal == 0
}

// Has reports whether every bit of other is set in s.
func (s Severity) Has(other Severity) bool {
	return other != 0 && s&other == other
}

var severityNames = map[string]Severity{
	"E_ERROR":             SeverityError,
	"E_WARNING":           SeverityWarning,
	"E_PARSE":             SeverityParse,
	"E_NOTICE":            SeverityNotice,
	"E_CORE_ERROR":        SeverityCoreError,
	"E_CORE_WARNING":      SeverityCoreWarning,
	"E_COMPILE_ERROR":     SeverityCompileError,
	"E_COMPILE_WARNING":   SeverityCompileWarning,
	"E_USER_ERROR":        SeverityUserError,
	"E_USER_WARNING":      SeverityUserWarning,
	"E_USER_NOTICE":       SeverityUserNotice,
	"E_STRICT":            SeverityStrict,
	"E_RECOVERABLE_ERROR": SeverityRecoverableError,
	"E_DEPRECATED":        SeverityDeprecated,
	"E_USER_DEPRECATED":   SeverityUserDeprecated,
	"E_ALL":               SeverityAll,
}

// goSeverityNames indexes severityNames by the Go constant suffix, so that
// "SeverityUserWarning" resolves like "E_USER_WARNING".
var goSeverityNames = func() map[string]Severity {
	m := make(map[string]Severity, len(severityNames))
	for name, sev := range severityNames {
		m[strings.ReplaceAll(strings.TrimPrefix(name, "E_"), "_", "")] = sev
	}
	return m
}()

func lookupSeverity(name string) (Severity, bool) {
	if sev, ok := severityNames[name]; ok {
		return sev, true
	}
	if rest, ok := strings.CutPrefix(name, "SEVERITY"); ok {
		sev, ok := goSeverityNames[rest]
		return sev, ok
	}
	return 0, false
}

// ParseSeverity builds a mask from a list of names such as
// ["E_ALL", "-E_DEPRECATED"] or ["SeverityAll", "-SeverityDeprecated"].
// A leading "-" or "~" clears the bits instead of setting them. Names are
// matched case-insensitively.
func ParseSeverity(names []string) (Severity, error) {
	var mask Severity
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		remove := false
		if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "~") {
			remove = true
			name = strings.TrimSpace(name[1:])
		}
		sev, ok := lookupSeverity(name)
		if !ok {
			return 0, fmt.Errorf("unknown severity %q", raw)
		}
		if remove {
			mask &^= sev
		} else {
			mask |= sev
		}
	}
	return mask, nil
}
