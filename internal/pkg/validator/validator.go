package validator

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/gofiber/fiber/v2"
	"github.com/hybridkit/ota-agent/internal/model"
	"github.com/hybridkit/ota-agent/internal/pkg/errs"
)

var (
	uni   = ut.New(en.New())
	trans ut.Translator
)

func init() {
	trans, _ = uni.GetTranslator("en")
	en_translations.RegisterDefaultTranslations(Validate, trans)

	Validate.RegisterTranslation("vertoken", trans, func(ut ut.Translator) error {
		return ut.Add("vertoken", "{0} must be a valid version token", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("vertoken", fe.Field())
		return t
	})
}

var Validate = New()

func New() *validator.Validate {

	validate := validator.New()

	validate.RegisterValidation("vertoken", verToken)

	return validate
}

// verToken accepts empty values so optional hint fields validate; pair with
// "required" when the token is mandatory.
func verToken(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	return val == "" || model.IsValidToken(val)
}

type ValidationError struct {
	Field     string `json:"field"`
	Violation string `json:"violation"`
	Message   string `json:"message"`
}

func convertValidationErrors(ves validator.ValidationErrors) []*ValidationError {

	errors := make([]*ValidationError, 0, len(ves))

	for _, fe := range ves {

		errors = append(errors, &ValidationError{
			Field:     fe.Field(),
			Violation: fe.Tag(),
			Message:   fe.Translate(trans),
		})
	}

	return errors
}

func ValidateBody(c *fiber.Ctx, dest any) error {

	if err := c.BodyParser(dest); err != nil {
		return errs.ErrInvalidParams
	}

	if err := Validate.Struct(dest); err != nil {

		ves, ok := err.(validator.ValidationErrors)
		if !ok {
			panic(err)
		}

		return errs.ErrInvalidParams.WithDetails(fiber.Map{
			"violations": convertValidationErrors(ves),
		})
	}

	return nil
}
