// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/oudcrm-automation/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// RenderTemplate substitutes every {{name}} placeholder found in data.
// Placeholders without a matching key are left as written so a missing
// variable never breaks a send.
func RenderTemplate(template string, data map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := data[name]; ok {
			return v
		}
		return match
	})
}

// RenderBilingual renders each language variant with its own variables.
func RenderBilingual(content model.Bilingual, en, ar map[string]string) model.Bilingual {
	return model.Bilingual{
		En: RenderTemplate(content.En, en),
		Ar: RenderTemplate(content.Ar, ar),
	}
}
