// Package handler exposes the session engine over HTTP. Response shapes are
// gated by the CDI protocol version advertised in the cdi-version header.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"session-core/internal/security"
	"session-core/internal/session/service"
)

// CDI protocol versions the facade understands. Unknown or absent versions
// follow the newest behavior.
const (
	cdiVersion1 = "1.0"
	cdiVersion2 = "2.0"

	cdiVersionHeader = "cdi-version"
)

const (
	msgInvalidJSON       = "Invalid JSON input"
	msgUseOneOf          = "Invalid JSON input - use one of userId, sessionHandle, or sessionHandles array"
	msgDeleteUnsupported = "DELETE /session is only available in CDI 1.0. Use POST /session/remove instead"
	msgInternalError     = "Internal Error"
)

// Handler serves the session HTTP endpoints.
type Handler struct {
	engine *service.Engine
	log    *slog.Logger
}

// NewHandler returns a Handler over engine. log may be nil.
func NewHandler(engine *service.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, log: log}
}

// cdiVersion resolves the protocol version for the request.
func cdiVersion(r *http.Request) string {
	switch v := r.Header.Get(cdiVersionHeader); v {
	case cdiVersion1, cdiVersion2:
		return v
	default:
		return cdiVersion2
	}
}

type sessionBlock struct {
	Handle        string          `json:"handle"`
	UserID        string          `json:"userId"`
	UserDataInJWT json.RawMessage `json:"userDataInJWT"`
}

// tokenBlock is one cookie token in a response. Optional fields are pointers
// so the CDI 1.0 shape can drop them entirely rather than emit nulls.
type tokenBlock struct {
	Token        string  `json:"token"`
	Expiry       int64   `json:"expiry"`
	CreatedTime  int64   `json:"createdTime"`
	CookiePath   *string `json:"cookiePath,omitempty"`
	CookieSecure *bool   `json:"cookieSecure,omitempty"`
	Domain       *string `json:"domain,omitempty"`
	SameSite     *string `json:"sameSite,omitempty"`
}

type bundleResponse struct {
	Status                        string       `json:"status"`
	Session                       sessionBlock `json:"session"`
	AccessToken                   tokenBlock   `json:"accessToken"`
	RefreshToken                  tokenBlock   `json:"refreshToken"`
	IDRefreshToken                tokenBlock   `json:"idRefreshToken"`
	AntiCsrfToken                 *string      `json:"antiCsrfToken"`
	JWTSigningPublicKey           string       `json:"jwtSigningPublicKey"`
	JWTSigningPublicKeyExpiryTime int64        `json:"jwtSigningPublicKeyExpiryTime"`
}

// buildTokenBlock shapes one token for the given CDI version. CDI 1.0
// clients did not recognize sameSite, and knew idRefreshToken only as a
// bare {token, expiry, createdTime} marker.
func buildTokenBlock(t service.TokenInfo, version string, idRefresh bool) tokenBlock {
	block := tokenBlock{
		Token:       t.Token,
		Expiry:      t.Expiry,
		CreatedTime: t.CreatedTime,
	}
	if version == cdiVersion1 && idRefresh {
		return block
	}
	block.CookiePath = &t.CookiePath
	block.CookieSecure = &t.CookieSecure
	block.Domain = &t.Domain
	if version != cdiVersion1 {
		block.SameSite = &t.SameSite
	}
	return block
}

func buildBundleResponse(b *service.Bundle, version string) bundleResponse {
	userData := b.Session.UserDataInJWT
	if userData == nil {
		userData = json.RawMessage(`{}`)
	}
	var antiCsrf *string
	if b.AntiCsrfToken != "" {
		antiCsrf = &b.AntiCsrfToken
	}
	return bundleResponse{
		Status: "OK",
		Session: sessionBlock{
			Handle:        b.Session.Handle,
			UserID:        b.Session.UserID,
			UserDataInJWT: userData,
		},
		AccessToken:                   buildTokenBlock(b.AccessToken, version, false),
		RefreshToken:                  buildTokenBlock(b.RefreshToken, version, false),
		IDRefreshToken:                buildTokenBlock(b.IDRefreshToken, version, true),
		AntiCsrfToken:                 antiCsrf,
		JWTSigningPublicKey:           b.JWTSigningPublicKey,
		JWTSigningPublicKeyExpiryTime: b.JWTSigningPublicKeyExpiryTime,
	}
}

// CreateSession handles POST /session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	userID, ok := requireString(w, fields, "userId")
	if !ok {
		return
	}
	userDataInJWT, ok := requireObject(w, fields, "userDataInJWT")
	if !ok {
		return
	}
	userDataInDatabase, ok := requireObject(w, fields, "userDataInDatabase")
	if !ok {
		return
	}

	bundle, err := h.engine.CreateNewSession(r.Context(), userID, userDataInJWT, userDataInDatabase)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, buildBundleResponse(bundle, cdiVersion(r)))
}

type revokeResponse struct {
	Status                  string `json:"status"`
	NumberOfSessionsRevoked int    `json:"numberOfSessionsRevoked"`
}

// RevokeSession handles DELETE /session. CDI 1.0 only; later protocol
// versions moved this operation to POST /session/remove.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	if cdiVersion(r) != cdiVersion1 {
		badRequest(w, msgDeleteUnsupported)
		return
	}
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	// A selector set to JSON null counts as absent.
	hasUserID := presentNonNull(fields, "userId")
	hasHandle := presentNonNull(fields, "sessionHandle")
	hasHandles := presentNonNull(fields, "sessionHandles")
	set := 0
	for _, present := range []bool{hasUserID, hasHandle, hasHandles} {
		if present {
			set++
		}
	}
	if set != 1 {
		badRequest(w, msgUseOneOf)
		return
	}

	var revoked []string
	var err error
	switch {
	case hasUserID:
		userID, ok := requireString(w, fields, "userId")
		if !ok {
			return
		}
		revoked, err = h.engine.RevokeAllSessionsForUser(r.Context(), userID)
	case hasHandle:
		handle, ok := requireString(w, fields, "sessionHandle")
		if !ok {
			return
		}
		revoked, err = h.engine.RevokeSessionsByHandles(r.Context(), []string{handle})
	default:
		handles, ok := requireStringArray(w, fields, "sessionHandles")
		if !ok {
			return
		}
		revoked, err = h.engine.RevokeSessionsByHandles(r.Context(), handles)
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, revokeResponse{Status: "OK", NumberOfSessionsRevoked: len(revoked)})
}

// RefreshSession handles POST /session/refresh.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	refreshToken, ok := requireString(w, fields, "refreshToken")
	if !ok {
		return
	}

	bundle, err := h.engine.RefreshSession(r.Context(), refreshToken)
	switch {
	case errors.Is(err, security.ErrTokenTampered),
		errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrTokenReuse),
		errors.Is(err, service.ErrSessionNotFound):
		unauthorized(w, "invalid refresh token")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}
	h.writeJSON(w, buildBundleResponse(bundle, cdiVersion(r)))
}

type verifyResponse struct {
	Status  string       `json:"status"`
	Session sessionBlock `json:"session"`
}

// VerifySession handles POST /session/verify.
func (h *Handler) VerifySession(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	accessToken, ok := requireString(w, fields, "accessToken")
	if !ok {
		return
	}

	info, err := h.engine.VerifySession(r.Context(), accessToken)
	switch {
	case errors.Is(err, security.ErrTokenSignature),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrSessionNotFound):
		unauthorized(w, "invalid access token")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}
	userData := info.UserDataInJWT
	if userData == nil {
		userData = json.RawMessage(`{}`)
	}
	h.writeJSON(w, verifyResponse{
		Status: "OK",
		Session: sessionBlock{
			Handle:        info.Handle,
			UserID:        info.UserID,
			UserDataInJWT: userData,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("handler: failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("handler: request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, msgInternalError)
}

type errorResponse struct {
	Message string `json:"message"`
}

// writeError emits an error body as JSON; the contract declares
// application/json in both directions, faults included.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}
