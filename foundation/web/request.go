package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/go-playground/validator/v10"
)

// validate holds the settings and caches for validating request struct values.
var validate = validator.New()

// Param returns the web call parameters from the request.
func Param(r *http.Request, key string) string {
	m := httptreemux.ContextParams(r.Context())
	return m[key]
}

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value. If the value is a struct, it is
// checked for validation tags.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(val); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if reflect.Indirect(reflect.ValueOf(val)).Kind() == reflect.Struct {
		if err := validate.Struct(val); err != nil {
			return err
		}
	}

	return nil
}
