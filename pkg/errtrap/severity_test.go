package errtrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KnownCodes(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{1, "Fatal Error"},
		{2, "Warning"},
		{4, "Parse error"},
		{8, "Notice"},
		{16, "Core Error"},
		{32, "Core Warning"},
		{64, "Compile Error"},
		{128, "Compile Warning"},
		{256, "User Error"},
		{512, "User Warning"},
		{1024, "User Notice"},
		{2048, "Strict Notice"},
		{4096, "Recoverable Error"},
		{8192, "Deprecated Notice"},
		{16384, "User Deprecated Notice"},
		{32767, "All Errors"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.code), "code %d", tt.code)
	}
}

func TestClassify_UnknownCodes(t *testing.T) {
	for _, code := range []int{0, -1, 3, 10, 32768, 65536} {
		assert.Equal(t, UnknownCategory, Classify(code), "code %d", code)
	}
}

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "Warning", SeverityWarning.String())
	assert.Equal(t, UnknownCategory, (SeverityWarning | SeverityNotice).String())
}

func TestSeverity_Fatal(t *testing.T) {
	fatal := []Severity{SeverityError, SeverityParse, SeverityCoreError, SeverityCoreWarning, SeverityCompileError, SeverityCompileWarning}
	for _, s := range fatal {
		assert.True(t, s.Fatal(), s.String())
	}

	nonFatal := []Severity{0, SeverityWarning, SeverityNotice, SeverityUserError, SeverityRecoverableError, SeverityDeprecated, SeverityAll}
	for _, s := range nonFatal {
		assert.False(t, s.Fatal(), s.String())
	}
}

func TestSeverity_Has(t *testing.T) {
	assert.True(t, SeverityAll.Has(SeverityNotice))
	assert.True(t, (SeverityWarning | SeverityNotice).Has(SeverityWarning|SeverityNotice))
	assert.False(t, SeverityWarning.Has(SeverityWarning|SeverityNotice))
	assert.False(t, SeverityAll.Has(0))
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  Severity
	}{
		{"empty", nil, 0},
		{"single", []string{"E_WARNING"}, SeverityWarning},
		{"all but notices", []string{"E_ALL", "-E_NOTICE", "~e_user_notice"}, SeverityAll &^ (SeverityNotice | SeverityUserNotice)},
		{"case and spaces", []string{" e_error ", "E_Parse"}, SeverityError | SeverityParse},
		{"blank entries ignored", []string{"", "E_STRICT"}, SeverityStrict},
		{"go constant names", []string{"SeverityAll", "-SeverityUserDeprecated", "~severityRecoverableError"}, SeverityAll &^ (SeverityUserDeprecated | SeverityRecoverableError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeverity(tt.names)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSeverity([]string{"E_ALL", "E_NOPE"})
	assert.ErrorContains(t, err, "E_NOPE")

	_, err = ParseSeverity([]string{"SeverityNope"})
	assert.Error(t, err)
}
