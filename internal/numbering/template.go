package numbering

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template tokens:
//
//	{SEQ:N}     sequence number zero-padded to N digits (never truncated)
//	{YYYY}      4-digit year
//	{YY}        2-digit year
//	{MM}        zero-padded month
//	{M}         month without padding
//	{DEPT}      department code, uppercased
//	{DEPT_NAME} department name (falls back to the uppercased code)
//
// Unrecognized {...} sequences pass through untouched so templates written
// against a newer token set keep rendering on older deployments.

// ErrInvalidTemplate indicates a template the renderer or validator rejects.
var ErrInvalidTemplate = errors.New("numbering: invalid template")

// MaxTemplateLength bounds administrator-supplied templates.
const MaxTemplateLength = 64

var (
	seqToken    = regexp.MustCompile(`\{SEQ:[^}]*\}`)
	knownTokens = regexp.MustCompile(`\{(YYYY|YY|MM|M|DEPT_NAME|DEPT)\}`)
	upperCaser  = cases.Upper(language.Und)
)

// Department identifies an organisational unit used in multi-department
// numbering. Name is optional.
type Department struct {
	Code string
	Name string
}

// RenderContext carries the values substituted into a template. Year and
// Month always come from the issue date; counter period sentinels (month=0
// for YEARLY/NEVER) must never reach rendering.
type RenderContext struct {
	Sequence   int
	Year       int
	Month      int
	Department *Department
}

// Render substitutes all recognized tokens in template. It is a pure
// function: no I/O, identical inputs produce identical output.
func Render(template string, ctx RenderContext) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("%w: template is blank", ErrInvalidTemplate)
	}

	out, err := renderSequence(template, ctx.Sequence)
	if err != nil {
		return "", err
	}

	// Department before year/month so separator cleanup sees raw tokens,
	// and {DEPT_NAME} before {DEPT} so the longer token wins.
	out = renderDepartment(out, ctx.Department)

	out = strings.ReplaceAll(out, "{YYYY}", strconv.Itoa(ctx.Year))
	out = strings.ReplaceAll(out, "{YY}", fmt.Sprintf("%02d", ctx.Year%100))
	out = strings.ReplaceAll(out, "{MM}", fmt.Sprintf("%02d", ctx.Month))
	out = strings.ReplaceAll(out, "{M}", strconv.Itoa(ctx.Month))

	return out, nil
}

func renderSequence(template string, sequence int) (string, error) {
	var tokenErr error
	out := seqToken.ReplaceAllStringFunc(template, func(token string) string {
		padding, err := parseSeqPadding(token)
		if err != nil {
			tokenErr = err
			return token
		}
		return fmt.Sprintf("%0*d", padding, sequence)
	})
	if tokenErr != nil {
		return "", tokenErr
	}
	return out, nil
}

func parseSeqPadding(token string) (int, error) {
	spec := strings.TrimSuffix(strings.TrimPrefix(token, "{SEQ:"), "}")
	padding, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence token %q needs a digit count", ErrInvalidTemplate, token)
	}
	if padding < 1 {
		return 0, fmt.Errorf("%w: sequence padding in %q must be positive", ErrInvalidTemplate, token)
	}
	return padding, nil
}

func renderDepartment(template string, dept *Department) string {
	if dept != nil && dept.Code != "" {
		code := upperCaser.String(dept.Code)
		name := dept.Name
		if name == "" {
			name = code
		}
		template = strings.ReplaceAll(template, "{DEPT_NAME}", name)
		template = strings.ReplaceAll(template, "{DEPT}", code)
		return template
	}

	// No department: drop each token together with one adjacent separator
	// so the output carries no dangling "-" or "/".
	for _, token := range []string{"{DEPT_NAME}", "{DEPT}"} {
		for _, pattern := range []string{"-" + token, "/" + token, token + "-", token + "/", token} {
			template = strings.ReplaceAll(template, pattern, "")
		}
	}
	return template
}

// ValidateTemplate checks a template at scheme-save time. It is stricter
// than Render: unknown tokens are rejected here so administrators catch
// typos, while Render passes them through for forward compatibility.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("%w: template is blank", ErrInvalidTemplate)
	}
	if len(template) > MaxTemplateLength {
		return fmt.Errorf("%w: template exceeds %d characters", ErrInvalidTemplate, MaxTemplateLength)
	}

	seqTokens := seqToken.FindAllString(template, -1)
	if len(seqTokens) == 0 {
		return fmt.Errorf("%w: template must contain a {SEQ:N} token", ErrInvalidTemplate)
	}
	for _, token := range seqTokens {
		padding, err := parseSeqPadding(token)
		if err != nil {
			return err
		}
		if padding > 10 {
			return fmt.Errorf("%w: sequence padding in %q must be at most 10", ErrInvalidTemplate, token)
		}
	}

	rest := seqToken.ReplaceAllString(template, "")
	rest = knownTokens.ReplaceAllString(rest, "")
	if strings.ContainsAny(rest, "{}") {
		return fmt.Errorf("%w: unknown token in template, valid tokens are {SEQ:N}, {YYYY}, {YY}, {MM}, {M}, {DEPT}, {DEPT_NAME}", ErrInvalidTemplate)
	}
	return nil
}

// Preview validates the template and renders it with example values for
// live configuration previews.
func Preview(template string) (string, error) {
	if err := ValidateTemplate(template); err != nil {
		return "", err
	}
	return Render(template, RenderContext{Sequence: 1, Year: 2026, Month: 2})
}
