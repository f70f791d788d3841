package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a service error to an HTTP status via its sentinel
// and writes the JSON error body. Unrecognized errors become opaque 500s.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotAllowListed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrMarketGraduated),
		errors.Is(err, domain.ErrNotGraduated),
		errors.Is(err, domain.ErrSlippageExceeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidConfigIndex),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrFeeExceedsMaximum),
		errors.Is(err, domain.ErrTradeTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientVotes),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrNoFundsToWithdraw):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEnginePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// profileIDParam parses the {profileID} path segment.
func profileIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(pathParam(r, "profileID"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid profile id")
	}
	return id, nil
}

// actorAddress extracts the caller's address from the X-Actor-Address header.
// Every mutating endpoint requires it; signature verification happens at the
// gateway in front of this service.
func actorAddress(r *http.Request) (common.Address, error) {
	raw := r.Header.Get("X-Actor-Address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("missing or invalid X-Actor-Address header")
	}
	return common.HexToAddress(raw), nil
}

// addressParam parses a named path segment as an EIP-55 address.
func addressParam(r *http.Request, name string) (common.Address, error) {
	raw := pathParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(raw), nil
}

// parseWei parses a decimal wei string from a request body. Empty strings
// stay nil so the services can apply their own presence checks.
func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.New("invalid wei amount: " + s)
	}
	return v, nil
}

// weiString renders a wei amount for a JSON body; nil reads as zero.
func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// decodeBody unmarshals a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
