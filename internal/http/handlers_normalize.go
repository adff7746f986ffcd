// Package httpx provides HTTP handlers and utilities for the normalize service API.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/ports"
	"github.com/opertusmundi/normalize/internal/service"
)

// multipartMemoryLimit bounds how much of an upload is held in memory
// before spilling to disk.
const multipartMemoryLimit = 32 << 20

// Response modes for a normalize request.
const (
	responsePrompt   = "prompt"
	responseDeferred = "deferred"
)

// NormalizeHandlers accepts normalize requests: it stages the uploaded
// resource and either processes it synchronously (prompt) or opens a
// ticket for the worker (deferred).
type NormalizeHandlers struct {
	Tickets        *service.TicketService
	Normalizer     ports.Normalizer
	TempDir        string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Create handles POST /normalize.
func (h *NormalizeHandlers) Create(w http.ResponseWriter, r *http.Request) {
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return
	}

	form, err := parseNormalizeForm(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return
	}

	token := uuid.NewString()
	stagingDir := filepath.Join(h.tempDir(), "normalize", "src", token)
	sourcePath, err := stageUpload(form.file, stagingDir)
	if err != nil {
		h.logError(r, "stage upload", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stage_failed", Err: errors.New("failed to store uploaded resource")})
		return
	}

	payload := form.payload
	payload.SourcePath = sourcePath
	if err := payload.Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return
	}

	if form.response == responsePrompt {
		h.servePrompt(w, r, token, &payload)
		return
	}
	h.enqueueDeferred(w, r, token, &payload)
}

// servePrompt processes the resource synchronously and streams the
// normalized file back as an attachment.
func (h *NormalizeHandlers) servePrompt(w http.ResponseWriter, r *http.Request, token string, payload *model.NormalizePayload) {
	result, err := h.Normalizer.Normalize(r.Context(), ports.NormalizeRequest{
		Token:     token,
		Payload:   payload,
		OutputDir: filepath.Dir(payload.SourcePath),
	})
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "normalize_failed", Err: err})
		return
	}
	serveAttachment(w, r, result.OutputPath)
}

// enqueueDeferred opens a ticket carrying the staged resource and
// returns the polling endpoints.
func (h *NormalizeHandlers) enqueueDeferred(w http.ResponseWriter, r *http.Request, token string, payload *model.NormalizePayload) {
	raw, err := payloadJSON(payload)
	if err != nil {
		h.logError(r, "encode payload", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "create_failed", Err: errors.New("failed to record request")})
		return
	}

	ticket, err := h.Tickets.Create(r.Context(), &model.CreateTicketRequest{Token: token, Payload: raw})
	if err != nil {
		h.logError(r, "create ticket", err)
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"ticket":   ticket.Token,
		"endpoint": "/resource/" + ticket.Token,
		"status":   "/status/" + ticket.Token,
	})
}

func (h *NormalizeHandlers) tempDir() string {
	if h.TempDir != "" {
		return h.TempDir
	}
	return os.TempDir()
}

func (h *NormalizeHandlers) logError(r *http.Request, msg string, err error) {
	if h.Logger != nil {
		h.Logger.ErrorContext(r.Context(), msg, "error", err)
	}
}

func payloadJSON(payload *model.NormalizePayload) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode normalize payload: %w", err)
	}
	return raw, nil
}

// normalizeForm carries the decoded multipart fields of a normalize request.
type normalizeForm struct {
	file     *multipart.FileHeader
	response string
	payload  model.NormalizePayload
}

func parseNormalizeForm(r *http.Request) (*normalizeForm, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["resource"]) == 0 {
		return nil, errors.New("resource file is required")
	}
	file := r.MultipartForm.File["resource"][0]

	resourceType := model.ResourceType(strings.TrimSpace(r.FormValue("resource_type")))
	if resourceType == "" {
		return nil, errors.New("resource_type is required")
	}
	if !resourceType.Valid() {
		return nil, fmt.Errorf("not supported resource type %q, the supported ones are csv and shp", resourceType)
	}

	response := r.FormValue("response")
	if response == "" {
		response = responsePrompt
	}
	if response != responsePrompt && response != responseDeferred {
		return nil, errors.New("permitted values for response are prompt or deferred")
	}

	form := &normalizeForm{
		file:     file,
		response: response,
		payload: model.NormalizePayload{
			ResourceType: resourceType,
			Filename:     filepath.Base(file.Filename),
			Delimiter:    r.FormValue("csv_delimiter"),
			CRS:          r.FormValue("crs"),
			Options: model.NormalizeOptions{
				DateColumns:             formList(r, "date_normalization"),
				PhoneColumns:            formList(r, "phone_normalization"),
				SpecialCharacterColumns: formList(r, "special_character_normalization"),
				AlphabeticalColumns:     formList(r, "alphabetical_normalization"),
				CaseColumns:             formList(r, "case_normalization"),
				TransliterationColumns:  formList(r, "transliteration"),
				TransliterationLangs:    formList(r, "transliteration_langs"),
				ValueCleaningColumns:    formList(r, "value_cleaning"),
				NormalizeColumnNames:    formBool(r, "column_name_normalization"),
			},
		},
	}
	return form, nil
}

// formList returns the repeated values of a multipart field, dropping
// empty entries.
func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.MultipartForm.Value[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// formBool treats a present field as enabled unless it carries an
// explicit falsy value.
func formBool(r *http.Request, key string) bool {
	values := r.MultipartForm.Value[key]
	if len(values) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(values[0])) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// stageUpload copies the uploaded file into the ticket's staging
// directory, keeping only the base name of the client-supplied filename.
func stageUpload(fh *multipart.FileHeader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := filepath.Base(fh.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "resource"
	}
	path := filepath.Join(dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

// serveAttachment streams a produced file back as a download.
func serveAttachment(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "read_failed", Err: errors.New("failed to read produced file")})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "read_failed", Err: errors.New("failed to read produced file")})
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
