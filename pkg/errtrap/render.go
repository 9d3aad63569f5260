// render.go produces the two report pages shown instead of default diagnostics.

package errtrap

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

// Renderer turns a record into the page sent to the client.
type Renderer interface {
	// Render returns the detailed page when verbose is true and the
	// anonymous page otherwise. The anonymous page must never contain the
	// message, file, line, code or trace of rec.
	Render(rec ErrorRecord, verbose bool) ([]byte, error)
}

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	detailedPage  = "detailed.html"
	anonymousPage = "anonymous.html"

	// historyBack is used for the back link when the request has no referer.
	historyBack = template.URL("javascript:history.back()")

	// DefaultTitle is the page title used when none is configured.
	DefaultTitle = "Application error"
)

// HTMLRenderer renders the embedded report templates.
type HTMLRenderer struct {
	title string
}

// NewHTMLRenderer creates a renderer whose pages carry title.
// An empty title selects DefaultTitle.
func NewHTMLRenderer(title string) *HTMLRenderer {
	if title == "" {
		title = DefaultTitle
	}
	return &HTMLRenderer{title: title}
}

type pageData struct {
	Title         string
	Date          string
	Time          string
	URI           string
	Script        string
	Code          int
	Category      string
	Message       string
	File          string
	Line          int
	CorrelationID string
	Runtime       string
	Back          any
	Trace         []Frame
}

// Render implements Renderer.
func (r *HTMLRenderer) Render(rec ErrorRecord, verbose bool) ([]byte, error) {
	data := pageData{
		Title:         r.title,
		Date:          rec.CapturedAt.Format("Mon Jan 2006"),
		Time:          rec.CapturedAt.Format("15:04:05"),
		URI:           rec.URI(),
		CorrelationID: rec.CorrelationID,
		Back:          backLink(rec.Referer),
	}

	name := anonymousPage
	if verbose {
		name = detailedPage
		data.Script = rec.ScriptPath
		data.Code = rec.Code
		data.Category = rec.Category
		data.Message = rec.Message
		data.File = rec.File
		data.Line = rec.Line
		data.Runtime = fmt.Sprintf("%s (%s)", rec.RuntimeVersion, rec.OSName)
		data.Trace = rec.StackTrace
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// backLink returns the referer, which html/template sanitizes as an
// untrusted URL, or the trusted history navigation fallback.
func backLink(referer string) any {
	if referer == "" {
		return historyBack
	}
	return referer
}

// fallbackPage is sent when the renderer fails. It quotes only the
// correlation id, which is always hex.
func fallbackPage(rec ErrorRecord) []byte {
	return []byte(fmt.Sprintf("<!DOCTYPE html>\n<html><body><p>An error occurred. Error code %s.</p></body></html>\n",
		template.HTMLEscapeString(rec.CorrelationID)))
}
