package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard-project/backend/errs"
	"taskboard-project/backend/logging"
)

// Envelope is the uniform response wrapper returned by every endpoint.
type Envelope struct {
	Error  bool        `json:"error"`
	Result interface{} `json:"result"`
}

var validate = validator.New()

func writeResult(w http.ResponseWriter, status int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Error: false, Result: result})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(errs.KindOf(err))
	if status == http.StatusInternalServerError {
		logging.Logger.Errorf("Event ID: REQUEST_FAILED, Description: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Error: true, Result: err.Error()})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.PageOutOfRange, errs.Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeAndValidate parses a JSON body into dst and runs the struct
// validation tags, so malformed input never reaches the domain services.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.New(errs.Validation, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return errs.Wrap(errs.Validation, err, "request validation failed")
	}
	return nil
}

// pathID extracts an ObjectID from a mux route variable.
func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[name])
	if err != nil {
		return primitive.NilObjectID, errs.Newf(errs.Validation, "invalid %s format", name)
	}
	return id, nil
}

func queryPage(r *http.Request) int {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return -1
		}
		page = n
	}
	return page
}
