package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ceramicprofile/api/internal/auth"
	"ceramicprofile/api/internal/did"
	"ceramicprofile/api/internal/identity"
	"ceramicprofile/api/internal/profile"
	"ceramicprofile/api/internal/wallet"
)

const pageHeader = "X-Page-ID"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ready(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/" {
		page := s.service.NewPage()
		if err := renderIndex(w, indexData{
			PageID:      page.ID,
			NetworkName: s.service.NetworkName(),
			ChainID:     s.service.RequiredChainID(),
		}); err != nil {
			log.Printf("http: render index: %v", err)
		}
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/pages" {
		page := s.service.NewPage()
		writeJSON(w, http.StatusCreated, page.View())
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "id": nil})
			return
		}
		session, err := s.service.ResumeSession(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "id": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"id":            session.ID,
			"address":       session.Address,
			"chainId":       session.ChainID,
			"expiresAt":     session.ExpiresAt.Unix(),
		})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/connection") || strings.HasPrefix(r.URL.Path, "/api/profile") {
		page, ok := s.requirePage(w, r)
		if !ok {
			return
		}
		s.handlePage(w, r, page)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePage(w http.ResponseWriter, r *http.Request, page *Page) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/connection":
		writeJSON(w, http.StatusOK, map[string]any{
			"connection":    page.View(),
			"notifications": page.Drain(),
		})

	case r.Method == http.MethodGet && r.URL.Path == "/api/connection/message":
		chainID, err := strconv.ParseInt(r.URL.Query().Get("chainId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QUERY", "chainId must be an integer", nil)
			return
		}
		message, err := page.Connection().SignInMessage(r.URL.Query().Get("address"), chainID)
		if err != nil {
			status, code, msg, details := mapError(err)
			writeError(w, status, code, msg, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": message})

	case r.Method == http.MethodPost && r.URL.Path == "/api/connection/connect":
		var body wallet.Response
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := page.Connect(r.Context(), body); err != nil {
			writePageError(w, page, err)
			return
		}
		response := map[string]any{
			"connection":    page.View(),
			"notifications": page.Drain(),
		}
		if session := page.Connection().Session(); session != nil {
			response["token"] = session.Token
			response["expiresAt"] = session.ExpiresAt.Unix()
		}
		if editor, err := page.Editor(r.Context()); err == nil {
			response["profile"] = editor.View()
		}
		writeJSON(w, http.StatusOK, response)

	case r.Method == http.MethodPost && r.URL.Path == "/api/connection/disconnect":
		if err := page.Disconnect(r.Context()); err != nil {
			writePageError(w, page, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"connection":    page.View(),
			"notifications": page.Drain(),
		})

	case r.Method == http.MethodGet && r.URL.Path == "/api/profile":
		editor, err := page.Editor(r.Context())
		if err != nil {
			writePageError(w, page, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":       editor.View(),
			"notifications": page.Drain(),
		})

	case r.Method == http.MethodPatch && r.URL.Path == "/api/profile/form":
		editor, err := page.Editor(r.Context())
		if err != nil {
			writePageError(w, page, err)
			return
		}
		var body struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
			Gender      *string `json:"gender"`
			Location    *string `json:"location"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Gender != nil {
			if err := editor.SetGender(*body.Gender); err != nil {
				writePageError(w, page, err)
				return
			}
		}
		if body.Name != nil {
			editor.SetName(*body.Name)
		}
		if body.Description != nil {
			editor.SetDescription(*body.Description)
		}
		if body.Location != nil {
			editor.SetLocation(*body.Location)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":       editor.View(),
			"notifications": page.Drain(),
		})

	case r.Method == http.MethodPost && r.URL.Path == "/api/profile/update":
		editor, err := page.Editor(r.Context())
		if err != nil {
			writePageError(w, page, err)
			return
		}
		if err := editor.UpdateProfile(r.Context()); err != nil {
			writePageError(w, page, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"profile":       editor.View(),
			"notifications": page.Drain(),
		})

	case r.Method == http.MethodGet && r.URL.Path == "/api/profile/history":
		session := page.Connection().Session()
		if session == nil {
			writePageError(w, page, ErrNotConnected)
			return
		}
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be a positive integer", nil)
				return
			}
			limit = parsed
		}
		commits, err := s.service.History(r.Context(), session.ID, limit)
		if err != nil {
			writePageError(w, page, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": session.ID, "commits": commits})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requirePage(w http.ResponseWriter, r *http.Request) (*Page, bool) {
	id := strings.TrimSpace(r.Header.Get(pageHeader))
	if id == "" {
		writeError(w, http.StatusBadRequest, "PAGE_REQUIRED", pageHeader+" header is required", nil)
		return nil, false
	}
	page, err := s.service.Page(id)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return nil, false
	}
	return page, true
}

// writePageError reports err together with the page's pending notifications.
func writePageError(w http.ResponseWriter, page *Page, err error) {
	status, code, message, details := mapError(err)
	response := map[string]any{
		"code":          code,
		"error":         message,
		"connection":    page.View(),
		"notifications": page.Drain(),
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","page_id":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			r.Header.Get(pageHeader),
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+pageHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, wallet.ErrRejected) || errors.Is(err, did.ErrInvalidAccount) {
		return http.StatusUnauthorized, "WALLET_REJECTED", "Wallet connection was rejected", nil
	}
	if errors.Is(err, profile.ErrInvalidContent) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", failureDetail(err), nil
	}
	var mergeErr *profile.MergeError
	if errors.As(err, &mergeErr) {
		return http.StatusBadGateway, "UPDATE_FAILED", "Profile could not be updated", map[string]any{"message": mergeErr.Err.Message}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, identity.ErrSessionNotFound) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Upstream call timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
