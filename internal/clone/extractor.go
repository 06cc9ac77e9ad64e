package clone

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
	"github.com/unclebandit/phishsim-backend/internal/model"
)

const fieldSelector = "input, textarea, select, button"

// ExtractFields lists the controls of every form in document order.
// Nameless controls are kept.
func ExtractFields(html string) ([]model.FormField, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, appErrors.NewInvalid("parse html: %v", err)
	}

	fields := []model.FormField{}
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action := form.AttrOr("action", "")
		method := strings.ToLower(form.AttrOr("method", "get"))

		form.Find(fieldSelector).Each(func(_ int, s *goquery.Selection) {
			_, required := s.Attr("required")
			fields = append(fields, model.FormField{
				Tag:         goquery.NodeName(s),
				Type:        s.AttrOr("type", "text"),
				Name:        s.AttrOr("name", ""),
				ID:          s.AttrOr("id", ""),
				Placeholder: s.AttrOr("placeholder", ""),
				Required:    required,
				FormAction:  action,
				FormMethod:  method,
			})
		})
	})
	return fields, nil
}
