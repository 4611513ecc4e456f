package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/pipeline"
	"github.com/spigell/resume-screener/internal/textsource"
)

const maxUploadBytes = textsource.MaxFileSize

type screenTextRequest struct {
	ResumeText     string `form:"resume_text" json:"resume_text"`
	JobDescription string `form:"job_description" json:"job_description"`
	Verbose        bool   `form:"verbose" json:"verbose"`
}

type screenUploadRequest struct {
	JobDescription string `form:"job_description"`
	Verbose        bool   `form:"verbose"`
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Resume Screening API",
		"endpoints": gin.H{
			"screen":      "POST /api/screen - upload a plain-text resume and a job description",
			"screen-text": "POST /api/screen-text - screen resume text against a job description",
			"health":      "GET /health - health check",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": service})
}

func (s *Server) screenText(c *gin.Context) {
	var req screenTextRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if !textsource.LongEnough(req.ResumeText, textsource.MinResumeChars) {
		badRequest(c, fmt.Sprintf("Resume text is too short (minimum %d characters)", textsource.MinResumeChars))
		return
	}
	if !textsource.LongEnough(req.JobDescription, textsource.MinJobDescriptionChars) {
		badRequest(c, fmt.Sprintf("Job description is too short (minimum %d characters)", textsource.MinJobDescriptionChars))
		return
	}

	s.screen(c, req.ResumeText, req.JobDescription, req.Verbose)
}

func (s *Server) screenUpload(c *gin.Context) {
	var req screenUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request: %v", err))
		return
	}

	header, err := c.FormFile("resume")
	if err != nil {
		badRequest(c, "resume file is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isSupported(ext) {
		badRequest(c, fmt.Sprintf("Unsupported file format: %s. Allowed: %s", ext, strings.Join(textsource.SupportedExtensions(), ", ")))
		return
	}
	if header.Size > textsource.MaxFileSize {
		badRequest(c, fmt.Sprintf("File too large. Maximum size: %d MB", textsource.MaxFileSize/(1024*1024)))
		return
	}

	if !textsource.LongEnough(req.JobDescription, textsource.MinJobDescriptionChars) {
		badRequest(c, fmt.Sprintf("Job description is too short (minimum %d characters)", textsource.MinJobDescriptionChars))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer file.Close()

	resumeText, err := textsource.Read(file)
	if err != nil {
		if errors.Is(err, textsource.ErrTooLarge) {
			badRequest(c, err.Error())
			return
		}
		badRequest(c, fmt.Sprintf("Failed to read resume: %v", err))
		return
	}

	if !textsource.LongEnough(resumeText, textsource.MinResumeChars) {
		c.JSON(http.StatusOK, pipeline.BuildManualReview("Resume text extraction returned empty or very short content."))
		return
	}

	s.screen(c, resumeText, req.JobDescription, req.Verbose)
}

func (s *Server) screen(c *gin.Context, resumeText, jobDescription string, verbose bool) {
	ctx := c.Request.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	decision := s.screener.Run(ctx, resumeText, jobDescription, verbose)

	s.logger.Debug("screening finished",
		zap.String(requestIDKey, c.GetString(requestIDKey)),
		zap.String("recommendation", string(decision.Recommendation)),
		zap.Bool("requires_human", decision.RequiresHuman),
	)

	c.JSON(http.StatusOK, decision)
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Error("request failed", zap.String(requestIDKey, c.GetString(requestIDKey)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
}

func isSupported(ext string) bool {
	for _, supported := range textsource.SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}
