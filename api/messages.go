package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/NoNameWrath/poap-api/models"
	"github.com/NoNameWrath/poap-api/services"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type decodingError struct {
	status int
	msg    string
}

func (br *decodingError) Error() string {
	return br.msg
}

type MintRequest struct {
	EventID      string                 `json:"event_id"`
	Token        models.AttendanceToken `json:"token"`
	Sig          string                 `json:"sig"`
	Signer       string                 `json:"signer"`
	WalletPubkey string                 `json:"wallet_pubkey"`
}

type MintResponse struct {
	OK          bool   `json:"ok"`
	MintedAsset string `json:"minted_asset"`
	Reused      bool   `json:"reused,omitempty"`
}

type CreateEventRequest struct {
	Name        string `json:"name"`
	StartsAt    int64  `json:"starts_at"`
	EndsAt      int64  `json:"ends_at"`
	MetadataURI string `json:"metadata_uri"`
	ImageURL    string `json:"image_url"`
}

type CreateEventResponse struct {
	OK             bool   `json:"ok"`
	EventID        string `json:"event_id"`
	QRSignerPubkey string `json:"qr_signer_pubkey"`
}

type EventResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StartsAt    int64  `json:"starts_at"`
	EndsAt      int64  `json:"ends_at"`
	MetadataURI string `json:"metadata_uri,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type DeleteEventResponse struct {
	OK             bool   `json:"ok"`
	DeletedEventID string `json:"deleted_event_id"`
}

func readJSONRequest(w http.ResponseWriter, r *http.Request, req interface{}) error {
	var err error

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		const msg = "Content-Type is not application/json"
		return &decodingError{status: http.StatusUnsupportedMediaType, msg: msg}
	}

	// Limit the size of the request body to 4 KB
	r.Body = http.MaxBytesReader(w, r.Body, 4096)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err = dec.Decode(&req)
	if err != nil || dec.Decode(&struct{}{}) != io.EOF {
		const msg = "invalid or multiple JSON objects in request body"
		return &decodingError{status: http.StatusBadRequest, msg: msg}
	}

	return nil
}

func writeJSONResponse(w http.ResponseWriter, code int, data interface{}) error {
	resp, merr := json.Marshal(data)
	if merr != nil {
		return merr
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, e := w.Write(resp)
	return e
}

func writeJSONError(w http.ResponseWriter, err error) error {
	var de *decodingError
	switch {
	case errors.As(err, &de):
		return writeJSONResponse(w, de.status, errorResponse{Error: de.msg})
	case errors.Is(err, &services.ValidationError{}):
		return writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.AuthenticationError{}):
		return writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.AuthorizationError{}):
		return writeJSONResponse(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.NotFoundError{}):
		return writeJSONResponse(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.InactiveError{}):
		return writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.ProofError{}):
		return writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.UpstreamError{}):
		return writeJSONResponse(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	case errors.Is(err, &services.PersistenceError{}):
		return writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		return writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
