package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/envio-core/internal/item"
)

// msgItemNotFound is the message of every item 404.
const msgItemNotFound = "Item not found"

// itemBaseRequest is the body of POST and PUT. Pointer fields tell a
// missing or null field apart from an explicit zero.
type itemBaseRequest struct {
	Ganancia *float64 `json:"ganancia"`
	Peso     *float64 `json:"peso"`
}

// toBase checks that both fields were supplied.
func (req itemBaseRequest) toBase() (item.ItemBase, error) {
	var missing []string
	if req.Ganancia == nil {
		missing = append(missing, "ganancia is required")
	}
	if req.Peso == nil {
		missing = append(missing, "peso is required")
	}
	if len(missing) > 0 {
		return item.ItemBase{}, errors.New(strings.Join(missing, "; "))
	}
	return item.ItemBase{Ganancia: *req.Ganancia, Peso: *req.Peso}, nil
}

// handleListItems returns every item in creation order.
func (s *Server) handleListItems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleGetItem returns a single item by id.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseItemID(w, r)
	if !ok {
		return
	}

	it, err := s.store.Get(id)
	if err != nil {
		s.writeStoreError(w, err, "failed to get item")
		return
	}

	writeJSON(w, http.StatusOK, it)
}

// handleCreateItem stores a new item and returns it with 201.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemBaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	base, err := req.toBase()
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var created item.Item
	seq, _ := s.mutate(func() error { //nolint:errcheck // Create never fails
		created = s.store.Create(base)
		return nil
	})
	s.publishItemEvent(r, eventCreated, seq, created)

	writeJSON(w, http.StatusCreated, created)
}

// handleReplaceItem overwrites both fields of an existing item.
func (s *Server) handleReplaceItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseItemID(w, r)
	if !ok {
		return
	}

	var req itemBaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	base, err := req.toBase()
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var replaced item.Item
	seq, err := s.mutate(func() (err error) {
		replaced, err = s.store.Replace(id, base)
		return err
	})
	if err != nil {
		s.writeStoreError(w, err, "failed to replace item")
		return
	}

	s.publishItemEvent(r, eventReplaced, seq, replaced)
	writeJSON(w, http.StatusOK, replaced)
}

// handleUpdateItem overwrites only the fields present in the body.
// An empty object leaves the item unchanged.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseItemID(w, r)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return
	}
	if raw == nil {
		writeValidationError(w, "request body must be a JSON object")
		return
	}
	update, err := parseItemUpdate(raw)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	// An empty update changes nothing, so it takes no sequence number.
	if update.IsEmpty() {
		current, err := s.store.Get(id)
		if err != nil {
			s.writeStoreError(w, err, "failed to update item")
			return
		}
		writeJSON(w, http.StatusOK, current)
		return
	}

	var updated item.Item
	seq, err := s.mutate(func() (err error) {
		updated, err = s.store.Merge(id, update)
		return err
	})
	if err != nil {
		s.writeStoreError(w, err, "failed to update item")
		return
	}

	s.publishItemEvent(r, eventUpdated, seq, updated)
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteItem removes an item and answers 204 with no body.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseItemID(w, r)
	if !ok {
		return
	}

	seq, err := s.mutate(func() error { return s.store.Delete(id) })
	if err != nil {
		s.writeStoreError(w, err, "failed to delete item")
		return
	}

	s.publishItemEvent(r, eventDeleted, seq, item.Item{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError maps store errors to responses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, item.ErrItemNotFound) {
		writeNotFound(w, msgItemNotFound)
		return
	}
	s.logger.Error(message, "error", err)
	writeInternalError(w, message)
}

// parseItemID reads the {id} path parameter. A value that is not an
// integer is a validation error, not a 404.
func parseItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeValidationError(w, fmt.Sprintf("id must be an integer, got %q", raw))
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v. On failure it writes the
// response and returns false: malformed JSON is a 400, a well-formed body
// of the wrong shape is a 422. The body must hold exactly one JSON value;
// anything but whitespace after it is a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeDecodeError(w, err)
		return false
	}

	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return true
	case isTooLarge(err):
		writeDecodeError(w, err)
	default:
		writeBadRequest(w, "request body must contain a single JSON value")
	}
	return false
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// writeDecodeError maps a failed first Decode to a response.
func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	switch {
	case isTooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			writeValidationError(w, typeErr.Field+" must be a number")
		} else {
			writeValidationError(w, "request body must be a JSON object")
		}
	case errors.Is(err, io.EOF):
		writeBadRequest(w, "request body is required")
	default:
		writeBadRequest(w, "invalid JSON body")
	}
}

// parseItemUpdate converts a decoded PATCH body into an ItemUpdate.
// Unknown keys are ignored; a known key set to null or a non-number is
// rejected.
func parseItemUpdate(raw map[string]json.RawMessage) (item.ItemUpdate, error) {
	var update item.ItemUpdate
	var err error

	if update.Peso, err = optionalNumber(raw, "peso"); err != nil {
		return item.ItemUpdate{}, err
	}
	if update.Ganancia, err = optionalNumber(raw, "ganancia"); err != nil {
		return item.ItemUpdate{}, err
	}

	return update, nil
}

// optionalNumber returns nil when field is absent.
func optionalNumber(raw map[string]json.RawMessage, field string) (*float64, error) {
	v, ok := raw[field]
	if !ok {
		return nil, nil //nolint:nilnil // absent field is not an error
	}
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, fmt.Errorf("%s must not be null", field)
	}

	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil, fmt.Errorf("%s must be a number", field)
	}
	return &f, nil
}
