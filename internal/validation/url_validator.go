package validation

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/index-mirror/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("web_url", validateWebURL)
}

// ValidateCollectionURL checks that an index page URL is an absolute http(s) URL.
func ValidateCollectionURL(u string) error {
	if err := validate.Var(u, "required,web_url"); err != nil {
		return fmt.Errorf("invalid collection URL %q: %w", u, err)
	}
	return nil
}

// ValidateDescriptor rejects descriptors whose URL is unusable or whose
// extension is too long to be a real file extension (e.g. parent-directory
// rows on a listing page).
func ValidateDescriptor(d domain.Descriptor) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid descriptor %q: %w", d.URL, err)
	}
	return nil
}

// ValidateStatusFilter checks a ledger status query value. Empty means no filter.
func ValidateStatusFilter(s string) error {
	return validate.Var(s, "omitempty,oneof=missing in_progress done")
}

func validateWebURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}
