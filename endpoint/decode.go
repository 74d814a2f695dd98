package endpoint

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit bounds the byte length of any single decoded parameter
// unless overridden with a maxLength tag.
const defaultFieldLimit = 16 * 1024

// defaultBodyLimit bounds the size of a JSON request body.
const defaultBodyLimit int64 = 1 << 20 // 1MB

// Unmarshal populates dst (a non-nil pointer to a struct) from the request.
//
// Sources, selected by struct tag:
//
//	`path:"name"`    r.PathValue(name)
//	`query:"name"`   r.URL.Query().Get(name)
//	`form:"name"`    r.PostForm (ParseForm is called as needed)
//	`header:"name"`  r.Header.Get(name)
//	`body:""`        the JSON request body, decoded into the field
//
// The tag value "-" skips the field. An empty name defaults to the lowercased
// field name. []byte fields accept a ",base64url" flag. Anonymous struct
// fields are flattened. Missing parameters leave the field at its zero value.
//
// A `maxLength:"n"` tag overrides the default 16KB per-field limit; values
// over the limit fail with a 400.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Errorf(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Errorf(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Errorf(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}
	return unmarshalStruct(r, root)
}

func unmarshalStruct(r *http.Request, root reflect.Value) error {
	t := root.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := root.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Anonymous && fv.Kind() == reflect.Struct {
			if err := unmarshalStruct(r, fv); err != nil {
				return err
			}
			continue
		}

		limit := defaultFieldLimit
		if ml, ok := sf.Tag.Lookup("maxLength"); ok && ml != "" {
			n, err := strconv.Atoi(ml)
			if err != nil {
				return Errorf(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: bad maxLength on %s: %w", sf.Name, err))
			}
			limit = n
		}

		if _, ok := sf.Tag.Lookup("body"); ok {
			if err := decodeJSONBody(r, fv); err != nil {
				return err
			}
			continue
		}

		name, flags, source := fieldSource(sf)
		if source == "" || name == "-" {
			continue
		}

		values, err := sourceValues(r, source, name)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			continue
		}
		if err := setField(sf.Name, fv, values, flags, limit); err != nil {
			return err
		}
	}
	return nil
}

// fieldSource returns the first recognized source tag on sf, in precedence
// order: path, query, form, header.
func fieldSource(sf reflect.StructField) (name, flags, source string) {
	for _, src := range []string{"path", "query", "form", "header"} {
		tag, ok := sf.Tag.Lookup(src)
		if !ok {
			continue
		}
		name, flags, _ = strings.Cut(tag, ",")
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		return name, flags, src
	}
	return "", "", ""
}

func sourceValues(r *http.Request, source, name string) ([]string, error) {
	switch source {
	case "path":
		if pv := r.PathValue(name); pv != "" {
			return []string{pv}, nil
		}
		return nil, nil
	case "query":
		return r.URL.Query()[name], nil
	case "form":
		if r.Form == nil {
			if err := r.ParseForm(); err != nil {
				return nil, Errorf(http.StatusBadRequest, "malformed form data", err)
			}
		}
		return r.PostForm[name], nil
	case "header":
		return r.Header.Values(name), nil
	}
	return nil, nil
}

func setField(fieldName string, fv reflect.Value, values []string, flags string, limit int) error {
	first := values[0]
	if limit > 0 && len(first) > limit {
		return Errorf(http.StatusBadRequest, fmt.Sprintf("parameter %s exceeds %d bytes", strings.ToLower(fieldName), limit), nil)
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(first)
	case reflect.Bool:
		b, err := strconv.ParseBool(first)
		if err != nil {
			// HTML checkboxes submit "on".
			if first == "on" {
				b = true
			} else {
				return Errorf(http.StatusBadRequest, fmt.Sprintf("parameter %s must be a boolean", strings.ToLower(fieldName)), err)
			}
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(first, 10, 64)
		if err != nil {
			return Errorf(http.StatusBadRequest, fmt.Sprintf("parameter %s must be an integer", strings.ToLower(fieldName)), err)
		}
		fv.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(first, 64)
		if err != nil {
			return Errorf(http.StatusBadRequest, fmt.Sprintf("parameter %s must be a number", strings.ToLower(fieldName)), err)
		}
		fv.SetFloat(f)
	case reflect.Slice:
		switch fv.Type().Elem().Kind() {
		case reflect.String:
			cp := make([]string, len(values))
			copy(cp, values)
			fv.Set(reflect.ValueOf(cp))
		case reflect.Uint8:
			if strings.Contains(flags, "base64url") {
				b, err := base64.RawURLEncoding.DecodeString(first)
				if err != nil {
					return Errorf(http.StatusBadRequest, fmt.Sprintf("parameter %s must be base64url", strings.ToLower(fieldName)), err)
				}
				fv.SetBytes(b)
			} else {
				fv.SetBytes([]byte(first))
			}
		default:
			return Errorf(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: unsupported slice type for %s", fieldName))
		}
	default:
		return Errorf(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: unsupported type %s for %s", fv.Kind(), fieldName))
	}
	return nil
}

func decodeJSONBody(r *http.Request, fv reflect.Value) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return Errorf(http.StatusUnsupportedMediaType, "expected application/json body", err)
		}
	}
	if fv.Kind() != reflect.Pointer {
		fv = fv.Addr()
	} else if fv.IsNil() {
		fv.Set(reflect.New(fv.Type().Elem()))
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, defaultBodyLimit))
	if err := dec.Decode(fv.Interface()); err != nil {
		return Errorf(http.StatusBadRequest, "malformed JSON body", err)
	}
	return nil
}
