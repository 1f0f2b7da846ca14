package scraper

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// AnalyzeForms describes every <form> in document order. Action is returned
// as written; resolving it is up to the caller.
func AnalyzeForms(doc *goquery.Document) []models.FormDescriptor {
	var forms []models.FormDescriptor
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		descriptor := models.FormDescriptor{
			Action: action,
			Method: formMethod(form),
		}
		form.Find("input").Each(func(_ int, input *goquery.Selection) {
			value, _ := input.Attr("value")
			descriptor.Inputs = append(descriptor.Inputs, models.InputField{
				Name:  optionalAttr(input, "name"),
				Type:  optionalAttr(input, "type"),
				Value: value,
			})
		})
		forms = append(forms, descriptor)
	})
	return forms
}

func formMethod(form *goquery.Selection) string {
	method, _ := form.Attr("method")
	if strings.EqualFold(strings.TrimSpace(method), http.MethodPost) {
		return http.MethodPost
	}
	return http.MethodGet
}

func optionalAttr(s *goquery.Selection, name string) *string {
	value, ok := s.Attr(name)
	if !ok {
		return nil
	}
	return &value
}

// FindLoginForm returns the first form holding an email-like field and a
// password field.
func FindLoginForm(forms []models.FormDescriptor) (*models.FormDescriptor, bool) {
	for i := range forms {
		hasEmail, hasPassword := false, false
		for _, input := range forms[i].Inputs {
			if isEmailField(input) {
				hasEmail = true
			}
			if isPasswordField(input) {
				hasPassword = true
			}
		}
		if hasEmail && hasPassword {
			return &forms[i], true
		}
	}
	return nil, false
}

// BuildLoginPayload fills the email and password fields and passes hidden
// fields (CSRF tokens and the like) through unchanged. Other fields are omitted.
func BuildLoginPayload(form *models.FormDescriptor, cred models.Credential) map[string]string {
	payload := make(map[string]string)
	for _, input := range form.Inputs {
		if input.Name == nil {
			continue
		}
		switch {
		case isEmailField(input):
			payload[*input.Name] = cred.Email
		case isPasswordField(input):
			payload[*input.Name] = cred.Password
		case strings.EqualFold(input.TypeValue(), "hidden"):
			payload[*input.Name] = input.Value
		}
	}
	return payload
}

func isEmailField(input models.InputField) bool {
	kind := strings.ToLower(input.TypeValue())
	if kind != "email" && kind != "text" {
		return false
	}
	return strings.Contains(strings.ToLower(input.NameValue()), "email")
}

func isPasswordField(input models.InputField) bool {
	return strings.EqualFold(input.TypeValue(), "password")
}
