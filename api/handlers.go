package api

import (
	"errors"
	"log"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"camhub/clipcache"
	"camhub/registry"
	"camhub/storage"
)

// getStatus reports the hub's view of cameras and storage.
func (s *Server) getStatus(c *gin.Context) {
	usedBytes, quotaBytes := s.retention.Usage()

	status := gin.H{
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"cameras":      s.registry.Snapshot(),
		"anyOnline":    s.registry.AnyOnline(),
		"anyStreaming": s.registry.AnyStreaming(),
		"segments":     s.index.Count(),
		"storage": gin.H{
			"usedBytes":  usedBytes,
			"quotaBytes": quotaBytes,
		},
		"wsClients": s.hub.ClientCount(),
	}

	if volume, err := storage.VolumeUsage(s.config.StoragePath); err == nil {
		status["volume"] = volume
	}
	c.JSON(http.StatusOK, status)
}

type streamRequest struct {
	Address        string `json:"address"`
	SegmentMinutes int    `json:"segmentMinutes"`
	Name           string `json:"name"`
	Role           string `json:"role"`
}

// startStream tells one camera to start its feed and segmented recording.
func (s *Server) startStream(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := s.registry.StartStreaming(c.Request.Context(), req.Address, registry.StartOptions{
		SegmentMinutes: req.SegmentMinutes,
		Name:           req.Name,
		Role:           req.Role,
	})
	if errors.Is(err, registry.ErrAddressRequired) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera address is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	sess, _ := s.registry.Get(req.Address)
	c.JSON(http.StatusOK, gin.H{"status": "streaming", "camera": sess})
}

// stopStream stops one camera, or every streaming camera when no
// address is given.
func (s *Server) stopStream(c *gin.Context) {
	var req streamRequest
	// An empty body means stop everything
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.registry.StopStreaming(c.Request.Context(), req.Address); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "anyStreaming": s.registry.AnyStreaming()})
}

func (s *Server) listVideos(c *gin.Context) {
	segments := s.index.All()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(segments),
		"videos": segments,
	})
}

func (s *Server) listVideosByCamera(c *gin.Context) {
	address := c.Param("address")
	segments := s.index.FindByCamera(address)
	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"count":   len(segments),
		"videos":  segments,
	})
}

func (s *Server) latestVideo(c *gin.Context) {
	seg, ok := s.index.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no videos stored"})
		return
	}
	c.JSON(http.StatusOK, seg)
}

// uploadVideo accepts one segmented recording from a camera agent.
func (s *Server) uploadVideo(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload is missing the video file"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	defer file.Close()

	seg, err := s.ingestor.Ingest(c.Request.Context(), file, c.PostForm("metadata"))
	if err != nil {
		log.Printf("[api] Upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store segment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"filename":  seg.Filename,
		"sizeBytes": seg.SizeBytes,
		"url":       s.config.BaseURL + "/videos/" + seg.Filename,
	})
}

// getClip returns the padded clip for one detection, extracting it on
// the first request.
func (s *Server) getClip(c *gin.Context) {
	detectionID, err := strconv.ParseInt(c.Param("detectionId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection id"})
		return
	}

	artifact, err := s.clips.Get(c.Request.Context(), detectionID)
	if errors.Is(err, clipcache.ErrDetectionNotFound) || errors.Is(err, clipcache.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("[api] Clip extraction failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to produce clip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detectionId":     artifact.DetectionID,
		"url":             "/clips/" + filepath.Base(artifact.Path),
		"startSeconds":    artifact.StartSeconds,
		"durationSeconds": artifact.DurationSeconds,
	})
}

func (s *Server) listDetections(c *gin.Context) {
	videoID, err := strconv.ParseInt(c.Param("videoId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	detections, err := s.db.ListDetectionsByVideo(videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list detections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"videoId": videoID, "detections": detections})
}

// liveRelay remuxes a camera's MJPEG feed into MPEG-TS and streams it
// to the caller. The subprocess is bound to the request context, so the
// moment the viewer disconnects ffmpeg is killed.
func (s *Server) liveRelay(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera address is required"})
		return
	}

	streamURL := "http://" + net.JoinHostPort(address, s.config.AgentPort) + "/stream"
	cmd := exec.CommandContext(c.Request.Context(), s.config.FFmpegPath,
		"-i", streamURL,
		"-c", "copy",
		"-f", "mpegts",
		"pipe:1")
	cmd.Stdout = c.Writer

	c.Header("Content-Type", "video/mp2t")
	c.Status(http.StatusOK)

	log.Printf("[api] Live relay started for %s", address)
	if err := cmd.Run(); err != nil && c.Request.Context().Err() == nil {
		log.Printf("[api] Live relay for %s ended: %v", address, err)
	}
}
