// Package server exposes the parsing pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"medparse/internal/acquisition"
	"medparse/internal/logger"
	"medparse/pkg/models"
	"medparse/pkg/services"
)

// DefaultMaxUploadBytes applies when Options.MaxUploadBytes is not set.
const DefaultMaxUploadBytes = 20 << 20

// Processor runs a document through the pipeline. *pipeline.Pipeline
// satisfies it.
type Processor = services.DocumentParser

// Options configures a Server.
type Options struct {
	MaxUploadBytes int64
	Version        string
}

// Server is the HTTP API.
type Server struct {
	echo      *echo.Echo
	processor Processor
	maxUpload int64
	version   string
	log       zerolog.Logger
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// New creates a server and registers its routes.
func New(processor Processor, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		echo:      echo.New(),
		processor: processor,
		maxUpload: opts.MaxUploadBytes,
		version:   opts.Version,
		log:       logger.WithComponent("server"),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(recovery())
	e.Use(requestID())
	e.Use(requestLogger())

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.POST("/documents/parse", s.handleParse)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("Starting server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleParse(c echo.Context) error {
	req := c.Request()
	if req.ContentLength > s.maxUpload {
		return s.fail(c, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
	}
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxUpload)

	file, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			return s.fail(c, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		}
		return s.fail(c, http.StatusBadRequest, "file is required")
	}
	if file.Size > s.maxUpload {
		return s.fail(c, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
	}

	patient, err := patientContext(c)
	if err != nil {
		return s.fail(c, http.StatusBadRequest, err.Error())
	}

	src, err := file.Open()
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, "failed to read uploaded file")
	}

	mediaType := c.FormValue("mediaType")
	if mediaType == "" {
		mediaType = file.Header.Get(echo.HeaderContentType)
	}

	doc := models.RawDocument{
		Content:   content,
		MediaType: mediaType,
		Filename:  file.Filename,
		Patient:   patient,
	}

	result, err := s.processor.Process(req.Context(), doc)
	if err != nil {
		switch {
		case errors.Is(err, acquisition.ErrUnsupportedMediaType):
			return s.fail(c, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return s.fail(c, http.StatusServiceUnavailable, "processing was canceled")
		default:
			log := requestLog(c)
			log.Error().Err(err).Str("file", file.Filename).Msg("Processing failed")
			return s.fail(c, http.StatusInternalServerError, "processing failed")
		}
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg, RequestID: requestIDOf(c)})
}

// patientContext reads the optional age, gender and region form fields.
func patientContext(c echo.Context) (*models.PatientContext, error) {
	ageText := strings.TrimSpace(c.FormValue("age"))
	gender := strings.ToLower(strings.TrimSpace(c.FormValue("gender")))
	region := strings.ToUpper(strings.TrimSpace(c.FormValue("region")))
	if ageText == "" && gender == "" && region == "" {
		return nil, nil
	}

	p := &models.PatientContext{Gender: gender, Region: region}
	if ageText != "" {
		age, err := strconv.Atoi(ageText)
		if err != nil || age < 0 || age > 130 {
			return nil, errors.New("age must be a whole number of years")
		}
		p.Age = age
	}
	switch gender {
	case "", "male", "female":
	case "m":
		p.Gender = "male"
	case "f":
		p.Gender = "female"
	default:
		return nil, errors.New("gender must be male or female")
	}
	return p, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
