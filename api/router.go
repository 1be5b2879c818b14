package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/NoNameWrath/poap-api/models"
	"github.com/NoNameWrath/poap-api/services"
	"github.com/NoNameWrath/poap-api/util"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type apiRouter struct {
	svc       *services.Service
	jwtSecret []byte
	logger    *zap.Logger
}

// IssueToken handles GET /qr-issue?event_id=. Called by the rotation client
// on an interval; every call returns a fresh signed token.
func (ar *apiRouter) IssueToken(w http.ResponseWriter, r *http.Request) error {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		return writeJSONError(w, &decodingError{status: http.StatusBadRequest, msg: "event_id required"})
	}

	issued, err := ar.svc.IssueToken(eventID)
	if err != nil {
		return writeJSONError(w, err)
	}

	return writeJSONResponse(w, http.StatusOK, issued)
}

// MintPass handles POST /mint: verify the scanned assertion, then claim.
func (ar *apiRouter) MintPass(w http.ResponseWriter, r *http.Request) error {
	id, ok := identityFromContext(r.Context())
	if !ok {
		return writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}

	var req MintRequest
	if err := readJSONRequest(w, r, &req); err != nil {
		return writeJSONError(w, err)
	}
	if req.EventID == "" || req.Sig == "" || req.Signer == "" || req.WalletPubkey == "" || req.Token == (models.AttendanceToken{}) {
		return writeJSONError(w, &decodingError{status: http.StatusBadRequest, msg: "missing fields"})
	}

	ar.logger.Info("Got mint request",
		zap.String("event_id", req.EventID),
		zap.String("wallet", req.WalletPubkey),
		zap.String("caller", id.Label()),
	)

	sig, err := base64.StdEncoding.DecodeString(req.Sig)
	if err != nil {
		return writeJSONError(w, &decodingError{status: http.StatusBadRequest, msg: "invalid signature encoding"})
	}

	signer, err := util.DecodePublicKey(req.Signer)
	if err != nil {
		return writeJSONError(w, &decodingError{status: http.StatusBadRequest, msg: "invalid signer key"})
	}

	assertion := &models.SignedAssertion{
		Token:     req.Token,
		Signature: sig,
		SignerKey: signer,
	}

	res, err := ar.svc.MintPass(r.Context(), req.EventID, assertion, req.WalletPubkey, id.Label())
	if err != nil {
		return writeJSONError(w, err)
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	return writeJSONResponse(w, status, MintResponse{OK: true, MintedAsset: res.MintedAsset, Reused: res.Reused})
}

// CreateEvent handles POST /events.
func (ar *apiRouter) CreateEvent(w http.ResponseWriter, r *http.Request) error {
	id, ok := identityFromContext(r.Context())
	if !ok {
		return writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}

	var req CreateEventRequest
	if err := readJSONRequest(w, r, &req); err != nil {
		return writeJSONError(w, err)
	}
	// A missing timestamp decodes to zero, which time.Unix would turn into
	// a 1970 window instead of an error. Reject it on the wire values.
	if req.StartsAt <= 0 || req.EndsAt <= 0 {
		return writeJSONError(w, &decodingError{status: http.StatusBadRequest, msg: "starts_at and ends_at required"})
	}

	created, err := ar.svc.CreateEvent(
		id.Label(),
		req.Name,
		time.Unix(req.StartsAt, 0),
		time.Unix(req.EndsAt, 0),
		req.MetadataURI,
		req.ImageURL,
	)
	if err != nil {
		return writeJSONError(w, err)
	}

	ar.logger.Info("Created event",
		zap.String("event_id", created.EventID),
		zap.String("caller", id.Label()))

	return writeJSONResponse(w, http.StatusCreated, CreateEventResponse{
		OK:             true,
		EventID:        created.EventID,
		QRSignerPubkey: created.SignerPublicKey,
	})
}

// GetEvent handles GET /events/{id}; read-only display metadata.
func (ar *apiRouter) GetEvent(w http.ResponseWriter, r *http.Request) error {
	eventID := mux.Vars(r)["id"]

	ev, err := ar.svc.GetEvent(eventID)
	if err != nil {
		return writeJSONError(w, err)
	}

	return writeJSONResponse(w, http.StatusOK, EventResponse{
		ID:          ev.ID,
		Name:        ev.Name,
		StartsAt:    ev.StartsAt.Unix(),
		EndsAt:      ev.EndsAt.Unix(),
		MetadataURI: ev.MetadataURI,
		ImageURL:    ev.ImageURL,
	})
}

// DeleteEvent handles DELETE /events/{id}. Admin only.
func (ar *apiRouter) DeleteEvent(w http.ResponseWriter, r *http.Request) error {
	id, ok := identityFromContext(r.Context())
	if !ok {
		return writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}
	eventID := mux.Vars(r)["id"]

	if err := ar.svc.DeleteEvent(id.Label(), eventID); err != nil {
		return writeJSONError(w, err)
	}

	ar.logger.Info("Deleted event",
		zap.String("event_id", eventID),
		zap.String("caller", id.Label()))

	return writeJSONResponse(w, http.StatusOK, DeleteEventResponse{OK: true, DeletedEventID: eventID})
}

// Wrapper to log unhandled errors.
// Note that this wrapper is only for last resort errors. For example, caused by
// error handling functions not being able to write a response to the client.
func (ar *apiRouter) wrapHandler(h func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			ar.logger.Error("Error handling request", zap.Error(err))
		}
	}
}

func NewAPIRouter(path string, svc *services.Service, origins []string, jwtSecret []byte, logger *zap.Logger) *mux.Router {
	// Create router.
	ah := &apiRouter{
		svc:       svc,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
	r := mux.NewRouter()
	sr := r.PathPrefix(path).Subrouter()

	// Register handlers.
	allowedMethods := []string{"GET", "POST", "DELETE", "OPTIONS"}
	sr.HandleFunc("/qr-issue", ah.wrapHandler(ah.IssueToken)).Methods("GET", "OPTIONS")
	sr.HandleFunc("/mint", ah.wrapHandler(ah.MintPass)).Methods("POST", "OPTIONS")
	sr.HandleFunc("/events", ah.wrapHandler(ah.CreateEvent)).Methods("POST", "OPTIONS")
	sr.HandleFunc("/events/{id}", ah.wrapHandler(ah.GetEvent)).Methods("GET", "OPTIONS")
	sr.HandleFunc("/events/{id}", ah.wrapHandler(ah.DeleteEvent)).Methods("DELETE", "OPTIONS")

	// CORS support.
	ch := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		Debug:            logger.Level() == zap.DebugLevel,
	})
	sr.Use(ch.Handler, ah.authenticate)

	return r
}
