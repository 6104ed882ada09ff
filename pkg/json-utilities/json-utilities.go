package json_utilities

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/silktrader/deadpoets/pkg/rest"
)

var errEncoding = errors.New("error while encoding response")

// maximum accepted body size for JSON payloads; poems are long, but not that long
const maxBodyBytes = 1 << 20

type httpError struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func newHttpError(err error) *httpError {
	return &httpError{err.Error(), time.Now()}
}

type httpMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func newHttpMessage(message string) *httpMessage {
	return &httpMessage{message, time.Now()}
}

func Created(writer http.ResponseWriter, payload interface{}) {
	encodeJSON(writer, http.StatusCreated, payload)
}

func Ok(writer http.ResponseWriter, payload interface{}) {
	encodeJSON(writer, http.StatusOK, payload)
}

func NoContent(writer http.ResponseWriter) {
	// no content type header needed
	writer.WriteHeader(http.StatusNoContent)
}

func NotFound(writer http.ResponseWriter, message string) {
	encodeJSON(writer, http.StatusNotFound, newHttpMessage(message))
}

func BadRequest(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusBadRequest)
}

func Unauthorised(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusUnauthorized)
}

func Forbidden(writer http.ResponseWriter) {
	encodeJSON(writer, http.StatusForbidden, newHttpMessage("Forbidden"))
}

func ForbiddenWithMessage(writer http.ResponseWriter, message string) {
	encodeJSON(writer, http.StatusForbidden, newHttpMessage(message))
}

func Conflict(writer http.ResponseWriter, message string) {
	encodeJSON(writer, http.StatusConflict, newHttpMessage(message))
}

func BadRequestWithMessage(writer http.ResponseWriter, message string) {
	encodeJSON(writer, http.StatusBadRequest, newHttpMessage(message))
}

// InternalServerError logs the error with the request's logger and hides its details from the client.
func InternalServerError(writer http.ResponseWriter, request *http.Request, err error) {
	rest.Logger(request).WithError(err).Error("request failed")
	encodeJSON(writer, http.StatusInternalServerError, newHttpMessage("Internal server error"))
}

func ValidationError(writer http.ResponseWriter, err error) {
	encodeJSON(writer, http.StatusBadRequest, newHttpError(err))
}

func encodeJSON(writer http.ResponseWriter, status int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if payload == nil {
		return
	}
	// the status is already written, the best option left is to append an error body
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		_ = json.NewEncoder(writer).Encode(newHttpError(errEncoding))
	}
}

// DecodeValidate parses a bounded JSON body into T and runs its validation rules.
func DecodeValidate[T Validator](writer http.ResponseWriter, request *http.Request) (data T, err error) {
	var decoder = json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err = decoder.Decode(&data); err != nil {
		return data, err
	}
	return data, data.Validate()
}

type Validator interface {
	Validate() error
}
