package response

import (
	"encoding/json"
	"net/http"

	apperror "github.com/stackops/stackops/pkg/error"
)

type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ErrorData is the data of a failed request
type ErrorData struct {
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, status bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	envelope := Envelope{
		Status:  status,
		Message: message,
		Data:    data,
	}

	_ = json.NewEncoder(w).Encode(envelope)
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, true, message, data)
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, false, message, nil)
}

// ErrorWithData reports a failure that still carries a result, e.g. a partially executed plan
func ErrorWithData(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, false, message, data)
}

// AppError writes a mapped application error with its stable code and details
func AppError(w http.ResponseWriter, err *apperror.AppError) {
	WriteJSON(w, err.Status, false, err.Message, ErrorData{Code: err.Code, Details: err.Details})
}

func BadRequest(w http.ResponseWriter, message string) {
	AppError(w, apperror.NewBadRequest(message))
}

func Unauthorized(w http.ResponseWriter, message string) {
	AppError(w, apperror.NewUnauthorized(message))
}

func NotFound(w http.ResponseWriter, message string) {
	AppError(w, apperror.NewNotFound(message))
}

func InternalServerError(w http.ResponseWriter, message string) {
	AppError(w, apperror.NewInternalServer(message))
}
