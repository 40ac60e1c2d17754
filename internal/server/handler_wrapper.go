package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters can be extracted by tagging struct fields with `path:"name"`,
// query parameters with `query:"name"`.
//
// Example:
//
//	type SelectRowsRequest struct {
//	    Table string `path:"table" json:"-"`
//	    Where string `query:"where" json:"-"`
//	}
//
//	func (h *TableHandler) SelectRows(ctx context.Context, req SelectRowsRequest) (*RowsResponse, error)
func Wrap[In any, Out any](fn func(context.Context, In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(r.Body)
		if err2 := r.Body.Close(); err == nil {
			err = err2
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			status := http.StatusBadRequest
			msg := "failed to read request body"
			if errors.As(err, &maxErr) {
				status = http.StatusRequestEntityTooLarge
				msg = "request body exceeds " + strconv.FormatInt(maxErr.Limit, 10) + " bytes"
			}
			slog.ErrorContext(ctx, "Failed to read request body", "err", err)
			writeErrorStatus(w, status, msg)
			return
		}
		var input In
		if len(body) > 0 {
			d := json.NewDecoder(bytes.NewReader(body))
			d.DisallowUnknownFields()
			if err := d.Decode(&input); err != nil {
				slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
				writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		populatePathParams(r, &input)
		populateQueryParams(r, &input)

		output, err := fn(ctx, input)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(output); err != nil {
			slog.ErrorContext(ctx, "Failed to encode response", "err", err)
		}
	})
}

// populatePathParams extracts path parameters from the request and populates
// struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Ptr {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}

	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			elem.Field(i).SetString(paramValue)
		}
	}
}

// populateQueryParams extracts query parameters from the request and
// populates struct fields tagged with `query:"paramName"`. String and int
// fields are supported.
func populateQueryParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Ptr {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}

	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}
		//nolint:exhaustive // Only string and int are supported for query params currently
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(paramValue)
		case reflect.Int:
			if intVal, err := strconv.Atoi(paramValue); err == nil {
				elem.Field(i).SetInt(int64(intVal))
			}
		default:
			// Other types are not supported for query params yet
		}
	}
}

// codeInternal is the wire code for errors outside the storage taxonomy.
const codeInternal taberrors.Code = "INTERNAL"

// writeError maps err to its HTTP status and writes the JSON error body.
// Server-side failures are logged at error level, client mistakes at warn.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := taberrors.HTTPStatus(err)
	code := taberrors.CodeOf(err)
	if code == "" {
		code = codeInternal
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "status", status)
	} else {
		slog.WarnContext(ctx, "Request rejected", "err", err, "status", status, "code", code)
	}
	writeErrorBody(w, status, string(code), err.Error())
}

func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, string(codeInternal), message)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
