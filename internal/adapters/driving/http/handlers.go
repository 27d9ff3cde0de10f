package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// indexResponse describes the passage index.
type indexResponse struct {
	EmbeddingModel string    `json:"embedding_model"`
	Dimensions     int       `json:"dimensions"`
	PassageCount   int       `json:"passage_count"`
	DocumentCount  int       `json:"document_count"`
	BuiltAt        time.Time `json:"built_at"`
}

func toIndexResponse(info *domain.IndexInfo) indexResponse {
	return indexResponse{
		EmbeddingModel: info.EmbeddingModel,
		Dimensions:     info.Dimensions,
		PassageCount:   info.PassageCount,
		DocumentCount:  info.DocumentCount,
		BuiltAt:        info.BuiltAt,
	}
}

// queryRequest is the body of an index query.
type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// passageResponse is one retrieved passage.
type passageResponse struct {
	Source     string  `json:"source"`
	Position   int     `json:"position"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// --- Generations ---

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req domain.ScenarioRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest()
	}

	job, err := s.ports.Jobs.Submit(c.UserContext(), req)
	if err != nil {
		return err
	}

	c.Location("/v1/generations/" + job.ID)
	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	jobs, err := s.ports.Jobs.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(jobs)
}

func (s *Server) handleGetJob(c *fiber.Ctx) error {
	job, err := s.ports.Jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (s *Server) handleCancelJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.ports.Jobs.Cancel(c.UserContext(), id); err != nil {
		return err
	}

	job, err := s.ports.Jobs.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}

// --- Runs ---

func (s *Server) handleListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return NewError(fiber.StatusBadRequest, "limit must not be negative")
	}

	runs, err := s.ports.Runs.List(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(runs)
}

func (s *Server) handleGetRun(c *fiber.Ctx) error {
	run, err := s.ports.Runs.Get(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return err
	}
	return c.JSON(run)
}

func (s *Server) handleListArtifacts(c *fiber.Ctx) error {
	artifacts, err := s.ports.Runs.Artifacts(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return err
	}
	return c.JSON(artifacts)
}

func (s *Server) handleGetArtifact(c *fiber.Ctx) error {
	name := c.Params("name")
	if !domain.ValidArtifactName(name) {
		return NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid artifact name %q", name))
	}

	data, err := s.ports.Runs.Artifact(c.UserContext(), c.Params("requestId"), name)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, domain.ContentType(name))
	return c.Send(data)
}

// --- Index ---

func (s *Server) handleIndexInfo(c *fiber.Ctx) error {
	info, err := s.ports.Index.Info(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(toIndexResponse(info))
}

func (s *Server) handleIndexRebuild(c *fiber.Ctx) error {
	info, err := s.ports.Index.Build(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(toIndexResponse(info))
}

func (s *Server) handleIndexQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest()
	}

	results, err := s.ports.Index.Query(c.UserContext(), req.Query, req.K)
	if err != nil {
		return err
	}

	passages := make([]passageResponse, len(results))
	for i, r := range results {
		passages[i] = passageResponse{
			Source:     r.Passage.Source,
			Position:   r.Passage.Position,
			Similarity: r.Similarity,
			Content:    r.Passage.Content,
		}
	}
	return c.JSON(passages)
}
