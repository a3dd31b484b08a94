// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 1 << 20

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=100,description=Display name"`
	Email    string `json:"email" jsonschema:"format=email,maxLength=254,description=Login email; must be unique"`
	Password string `json:"password" jsonschema:"minLength=1,description=Plain-text password; hashed before storage"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"description=Registered email"`
	Password string `json:"password" jsonschema:"description=Account password"`
}

// Schema names.
const (
	SchemaRegister = "register"
	SchemaLogin    = "login"
)

var requestTypes = map[string]struct {
	value any
	title string
}{
	SchemaRegister: {&RegisterRequest{}, "Register request"},
	SchemaLogin:    {&LoginRequest{}, "Login request"},
}

// SchemaNames lists the request schemas in a stable order.
func SchemaNames() []string {
	names := make([]string, 0, len(requestTypes))
	for name := range requestTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GenerateSchema reflects the JSON Schema of the named request body.
func GenerateSchema(name string) ([]byte, error) {
	rt, ok := requestTypes[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown schema")
	}

	r := jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(rt.value)
	schema.Title = rt.title

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", name).Wrap(err)
	}
	return data, nil
}

// bodyValidator holds the compiled request schemas.
type bodyValidator struct {
	compiled map[string]*jschema.Schema
	docs     map[string]json.RawMessage
}

func newBodyValidator() (*bodyValidator, error) {
	v := &bodyValidator{
		compiled: make(map[string]*jschema.Schema, len(requestTypes)),
		docs:     make(map[string]json.RawMessage, len(requestTypes)),
	}

	c := jschema.NewCompiler()
	c.AssertFormat()
	for _, name := range SchemaNames() {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_PARSE_FAILED").With("schema", name).Wrap(err)
		}
		url := name + ".schema.json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
		}
		v.compiled[name] = sch
		v.docs[name] = data
	}
	return v, nil
}

// decode reads the request body, validates it against the named schema and
// unmarshals it into dst. Every error it returns is the client's fault.
func (v *bodyValidator) decode(w http.ResponseWriter, r *http.Request, name string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code("REQUEST_TOO_LARGE").With("limit", MaxBodyBytes).Wrap(err)
		}
		return oops.Code("REQUEST_READ_FAILED").Wrap(err)
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code("REQUEST_NOT_JSON").Wrap(err)
	}
	if err := v.compiled[name].Validate(inst); err != nil {
		return oops.Code("REQUEST_SCHEMA_VIOLATION").With("schema", name).Wrap(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code("REQUEST_DECODE_FAILED").Wrap(err)
	}
	return nil
}
