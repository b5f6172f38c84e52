package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/docstore"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/ingest"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// Response messages.
const (
	msgMissingGraph    = "Instruction error: A workflow graph must be provided for execution."
	msgWorkflowSaved   = "Workflow saved successfully"
	msgWorkflowUpdated = "Workflow updated successfully"
	msgNotFound        = "Workflow not found"
	msgUnsupportedFile = "Only PDF, .txt and .md files are supported"
	msgNoPDFText       = "Could not extract text from PDF"
	msgNoText          = "Could not extract text from document"
)

type saveParams struct {
	Name string `validate:"required,max=255"`
}

type uploadParams struct {
	Collection string `validate:"required,min=3,max=63"`
}

func (s *Server) health(c fiber.Ctx) error {
	return c.JSON(api.Health{Status: "online", Service: api.ServiceName, Version: api.ServiceVersion})
}

func (s *Server) execute(c fiber.Ctx) error {
	var req api.ExecuteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Graph == nil {
		return detail(c, fiber.StatusBadRequest, msgMissingGraph)
	}
	if err := s.validate.Struct(req); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, describe(err))
	}

	resp, err := s.exec.Execute(c.Context(), req)
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, "Workflow execution failed: "+err.Error())
	}
	return c.JSON(resp)
}

func (s *Server) saveWorkflow(c fiber.Ctx) error {
	params := saveParams{Name: strings.TrimSpace(c.Query("name"))}
	if err := s.validate.Struct(params); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, describe(err))
	}
	var g graph.Snapshot
	if err := c.Bind().JSON(&g); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid workflow graph: "+err.Error())
	}

	doc, created, err := s.store.Save(c.Context(), params.Name, g)
	if err != nil {
		observability.LogSaveError(s.logger, params.Name, err)
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	msg := msgWorkflowUpdated
	if created {
		msg = msgWorkflowSaved
	}
	observability.LogSave(s.logger, doc.Name, doc.ID, msg)
	return c.JSON(api.SaveResponse{Message: msg, ID: doc.ID})
}

func (s *Server) listWorkflows(c fiber.Ctx) error {
	summaries, err := s.store.List(c.Context())
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	out := make([]api.WorkflowSummary, len(summaries))
	for i, sm := range summaries {
		out[i] = api.WorkflowSummary{ID: sm.ID, Name: sm.Name, CreatedAt: sm.CreatedAt}
	}
	return c.JSON(out)
}

func (s *Server) getWorkflow(c fiber.Ctx) error {
	doc, err := s.store.Get(c.Context(), c.Params("name"))
	if errors.Is(err, docstore.ErrNotFound) {
		return detail(c, fiber.StatusNotFound, msgNotFound)
	}
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(doc.Graph)
}

func (s *Server) deleteWorkflow(c fiber.Ctx) error {
	if err := s.store.Delete(c.Context(), c.Params("name")); err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) collections(c fiber.Ctx) error {
	names := s.knowledge.Collections()
	if names == nil {
		names = []string{}
	}
	return c.JSON(api.CollectionsResponse{Collections: names})
}

func (s *Server) uploadHistory(c fiber.Ctx) error {
	uploads, err := s.store.Uploads(c.Context(), c.Query("collection"))
	if err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}
	out := make([]api.UploadRecord, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, api.UploadRecord{
			Filename:    u.Filename,
			Collection:  u.Collection,
			ChunksCount: u.Chunks,
			UploadDate:  u.UploadedAt,
		})
	}
	return c.JSON(out)
}

func (s *Server) upload(c fiber.Ctx) error {
	params := uploadParams{Collection: c.FormValue("collection_name", api.DefaultCollection)}
	if err := s.validate.Struct(params); err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, describe(err))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return detail(c, fiber.StatusUnprocessableEntity, "file is required")
	}
	filename := filepath.Base(fh.Filename)
	format, err := ingest.Detect(filename)
	if err != nil {
		return detail(c, fiber.StatusBadRequest, msgUnsupportedFile)
	}

	data, err := s.readDocument(fh)
	if err != nil {
		s.fail(c, params.Collection, filename, err)
		return detail(c, fiber.StatusBadRequest, err.Error())
	}
	chunks, err := ingest.Chunks(filename, data)
	if err != nil {
		s.fail(c, params.Collection, filename, err)
		if format == ingest.FormatPDF {
			return detail(c, fiber.StatusBadRequest, msgNoPDFText)
		}
		return detail(c, fiber.StatusBadRequest, msgNoText)
	}

	added := s.knowledge.Add(params.Collection, chunks)
	if err := s.store.RecordUpload(c.Context(), docstore.Upload{
		Filename:   filename,
		Collection: params.Collection,
		Chunks:     added,
	}); err != nil {
		// The chunks are already searchable; only the ledger entry is lost.
		s.logger.Warn("recording upload failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
	}

	s.metrics.RecordUpload(c.Context(), params.Collection, added, nil)
	observability.LogUpload(s.logger, params.Collection, filename, added)
	return c.JSON(api.UploadResponse{
		Message:     "Successfully processed " + filename,
		ChunksAdded: added,
		Collection:  params.Collection,
	})
}

func (s *Server) readDocument(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(s.maxUpload)+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > s.maxUpload {
		return nil, fmt.Errorf("document exceeds %d bytes", s.maxUpload)
	}
	return data, nil
}

func (s *Server) fail(c fiber.Ctx, collection, filename string, err error) {
	s.metrics.RecordUpload(c.Context(), collection, 0, err)
	observability.LogUploadError(s.logger, collection, filename, err)
}

// describe renders the first validation failure as a sentence.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}
