package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/database"
	"rsyaclean/internal/orchestrator"
)

func (s *Server) readyHandler(c *gin.Context) {
	dbErr := s.sc.DBHealth()
	historyErr := s.sc.HistoryHealth()
	cacheErr := s.sc.CacheHealth()
	rabbitErr := s.sc.RabbitHealth()
	archiveErr := s.sc.ArchiveHealth()

	res := gin.H{
		"database": dbErr == nil,
		"history":  historyErr == nil,
		"cache":    cacheErr == nil,
		"rabbit":   rabbitErr == nil,
		"archive":  archiveErr == nil,
	}

	// cache, history and archive degrade the engine but do not stop it
	if dbErr != nil || rabbitErr != nil {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	c.String(http.StatusOK, s.sc.Online())
}

func (s *Server) processBatchHandler(c *gin.Context) {
	batchID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || batchID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch id"})
		return
	}

	metrics, err := s.ec.ProcessBatch(c.Request.Context(), batchID)
	switch {
	case errors.Is(err, orchestrator.ErrBatchNotClaimable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	case err != nil:
		log.Error().Err(err).Int64("batchId", batchID).Msg("Batch processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

func (s *Server) dispatchHandler(c *gin.Context) {
	summary, err := s.ec.Dispatch(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Dispatch cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) pollReportsHandler(c *gin.Context) {
	summary, err := s.ec.PollReports(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Pending report poll failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) analysisHandler(c *gin.Context) {
	campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || campaignID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign id"})
		return
	}

	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project_id parameter"})
		return
	}

	analysis, err := s.ec.AnalyzeCampaign(c.Request.Context(), projectID, campaignID)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownCampaign), errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Int64("campaignId", campaignID).Msg("Campaign analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, analysis)
}
