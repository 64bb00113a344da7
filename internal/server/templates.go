package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/auth_error.html
var authErrorPageTemplateHTML string

var authErrorPageTemplate = template.Must(template.New("auth_error").Parse(authErrorPageTemplateHTML))

// AuthErrorPageData is rendered on the auth code error page
type AuthErrorPageData struct {
	LoginURL  string
	RequestID string
}
