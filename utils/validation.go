package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/biter777/countries"
	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("country", func(fl validator.FieldLevel) bool {
		return LookupCountry(fl.Field().String()) != countries.Unknown
	})
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func IsEthAddress(addr string) bool {
	return validate.Var(addr, "required,eth_addr") == nil
}

// LookupCountry accepts an English country name or an ISO alpha-2/alpha-3 code.
func LookupCountry(name string) countries.CountryCode {
	name = strings.TrimSpace(name)
	if name == "" {
		return countries.Unknown
	}
	return countries.ByName(name)
}

// CountryISO returns the alpha-2 code of a country name, or "" if unknown.
func CountryISO(name string) string {
	c := LookupCountry(name)
	if c == countries.Unknown {
		return ""
	}
	return c.Alpha2()
}

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone validates number against the country of countryName and
// returns the "+<calling code>" prefix and the national number.
func NormalizePhone(countryName, number string) (callingCode, national string, err error) {
	region := CountryISO(countryName)
	if region == "" {
		return "", "", fmt.Errorf("%w: unknown country %q", ErrInvalidPhone, countryName)
	}
	num, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", "", ErrInvalidPhone
	}
	return fmt.Sprintf("+%d", num.GetCountryCode()), phonenumbers.GetNationalSignificantNumber(num), nil
}

func FormatValidationError(err error) map[string]string {
	out := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return out
	}
	for _, fieldError := range validationErrors {
		field := fieldError.Field()
		switch fieldError.Tag() {
		case "required", "required_if":
			out[field] = fmt.Sprintf("%s is required", field)
		case "email":
			out[field] = "Invalid email format"
		case "min":
			out[field] = fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
		case "len":
			out[field] = fmt.Sprintf("%s must be exactly %s characters", field, fieldError.Param())
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of: %s", field, fieldError.Param())
		case "country":
			out[field] = fmt.Sprintf("%s is not a known country", field)
		case "eth_addr":
			out[field] = fmt.Sprintf("%s is not a valid Ethereum address", field)
		case "base64":
			out[field] = fmt.Sprintf("%s must be base64 encoded", field)
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return out
}
