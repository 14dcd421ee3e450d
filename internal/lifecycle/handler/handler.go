// Package handler wires the certification lifecycle to its HTTP endpoints.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"verifyd/internal/certificate"
	"verifyd/internal/lifecycle"
	id "verifyd/pkg/domain"
	dErrors "verifyd/pkg/domain-errors"
	"verifyd/pkg/platform/httputil"
)

// multipartMemoryLimit is the in-memory threshold for multipart parsing;
// larger uploads spool to temp files.
const multipartMemoryLimit = 32 << 20

// Service defines the lifecycle operations the handler exposes.
type Service interface {
	Submit(ctx context.Context, req lifecycle.SubmitRequest) (*lifecycle.SubmitResult, error)
	Approve(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error)
	Verify(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error)
	Download(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, *os.File, error)
}

// Config carries the handler's request-shaping settings.
type Config struct {
	// MaxUploadBytes caps the accepted request body size.
	MaxUploadBytes int64
	// FreeLimit is echoed in submission responses as remaining quota.
	FreeLimit int
}

// Handler wires lifecycle endpoints to the lifecycle service.
type Handler struct {
	service Service
	cfg     Config
	logger  *slog.Logger
}

// New constructs a lifecycle handler with its dependencies.
func New(service Service, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		logger:  logger.With("component", "lifecycle_handler"),
	}
}

// Register mounts the public lifecycle endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/videos", h.HandleSubmit)
	r.Get("/certificates/{id}/verify", h.HandleVerify)
	r.Get("/certificates/{id}/download", h.HandleDownload)
}

// RegisterAdmin mounts the operator-only endpoints. The caller applies the
// admin guard middleware on the router it passes in.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/certificates/{id}/approve", h.HandleApprove)
}

type submitResponse struct {
	CertificateID string `json:"certificate_id"`
	Status        string `json:"status"`
	Score         int    `json:"score"`
	VerifyURL     string `json:"verify_url"`
	DownloadURL   string `json:"download_url,omitempty"`
	UploadsUsed   *int   `json:"uploads_used,omitempty"`
	FreeRemaining *int   `json:"free_remaining,omitempty"`
}

// HandleSubmit handles POST /api/v1/videos requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput,
				"upload exceeds the %d byte limit", maxBytesErr.Limit))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart upload"))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing file field"))
		return
	}
	defer file.Close()

	identity := r.FormValue("identity")
	if identity == "" {
		identity = r.Header.Get("X-Identity")
	}

	result, err := h.service.Submit(ctx, lifecycle.SubmitRequest{
		Identity: id.NormalizeIdentity(identity),
		Filename: filepath.Base(header.Filename),
		Body:     file,
	})
	if err != nil {
		h.logSubmitFailure(ctx, header.Filename, err)
		httputil.WriteError(w, err)
		return
	}

	cert := result.Certificate
	resp := submitResponse{
		CertificateID: cert.ID.String(),
		Status:        string(cert.Status),
		Score:         cert.Score,
		VerifyURL:     fmt.Sprintf("/api/v1/certificates/%s/verify", cert.ID),
	}
	if cert.Certified() {
		resp.DownloadURL = fmt.Sprintf("/api/v1/certificates/%s/download", cert.ID)
	}
	if result.Usage != nil {
		used := result.Usage.UploadsUsed
		remaining := result.Usage.Remaining(h.cfg.FreeLimit)
		resp.UploadsUsed = &used
		resp.FreeRemaining = &remaining
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// logSubmitFailure keeps routine rejections out of the error log. Quota
// denials and bad uploads are user outcomes the caller can act on;
// Error is reserved for failures inside the service.
func (h *Handler) logSubmitFailure(ctx context.Context, filename string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeQuotaExceeded, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		h.logger.InfoContext(ctx, "submission rejected", "filename", filename, "error", err)
	default:
		h.logger.ErrorContext(ctx, "submission failed", "filename", filename, "error", err)
	}
}

type verifyResponse struct {
	CertificateID    string     `json:"certificate_id"`
	Status           string     `json:"status"`
	Score            int        `json:"score"`
	Fingerprint      string     `json:"fingerprint"`
	OriginalFilename string     `json:"original_filename"`
	CreatedAt        time.Time  `json:"created_at"`
	CertifiedAt      *time.Time `json:"certified_at,omitempty"`
}

// HandleVerify handles GET /api/v1/certificates/{id}/verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	certID, ok := h.certIDFromPath(w, r)
	if !ok {
		return
	}

	cert, err := h.service.Verify(r.Context(), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		CertificateID:    cert.ID.String(),
		Status:           string(cert.Status),
		Score:            cert.Score,
		Fingerprint:      cert.Fingerprint,
		OriginalFilename: cert.OriginalFilename,
		CreatedAt:        cert.CreatedAt,
		CertifiedAt:      cert.CertifiedAt,
	})
}

// HandleDownload handles GET /api/v1/certificates/{id}/download requests.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := h.certIDFromPath(w, r)
	if !ok {
		return
	}

	cert, f, err := h.service.Download(ctx, certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stat artifact"))
		return
	}

	downloadName := downloadFilename(cert)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	http.ServeContent(w, r, downloadName, info.ModTime(), f)
}

type approveResponse struct {
	CertificateID string `json:"certificate_id"`
	Status        string `json:"status"`
}

// HandleApprove handles POST /api/v1/certificates/{id}/approve requests.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, ok := h.certIDFromPath(w, r)
	if !ok {
		return
	}

	cert, err := h.service.Approve(ctx, certID)
	if err != nil {
		h.logger.ErrorContext(ctx, "approval failed",
			"certificate_id", certID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, approveResponse{
		CertificateID: cert.ID.String(),
		Status:        string(cert.Status),
	})
}

// certIDFromPath parses the {id} path parameter. A malformed id can never
// name a certificate, so it reports not found rather than bad request.
func (h *Handler) certIDFromPath(w http.ResponseWriter, r *http.Request) (id.CertificateID, bool) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "certificate not found"))
		return id.CertificateID{}, false
	}
	return certID, true
}

// downloadFilename names the served artifact after the original upload,
// always with the stamped .mp4 extension.
func downloadFilename(cert *certificate.Certificate) string {
	base := filepath.Base(cert.OriginalFilename)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." {
		base = cert.ID.String()
	}
	return "certified_" + base + ".mp4"
}
