package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"camhub/catalog"
	"camhub/clipcache"
	"camhub/config"
	"camhub/database"
	"camhub/events"
	"camhub/ingest"
	"camhub/registry"
	"camhub/retention"
)

type Server struct {
	config    config.Config
	db        database.Database
	index     *catalog.SegmentIndex
	registry  *registry.Registry
	retention *retention.Manager
	clips     *clipcache.Cache
	hub       *events.Hub
	ingestor  *ingest.Ingestor
}

func NewServer(cfg config.Config, db database.Database, index *catalog.SegmentIndex, reg *registry.Registry, ret *retention.Manager, clips *clipcache.Cache, hub *events.Hub, ingestor *ingest.Ingestor) *Server {
	return &Server{
		config:    cfg,
		db:        db,
		index:     index,
		registry:  reg,
		retention: ret,
		clips:     clips,
		hub:       hub,
		ingestor:  ingestor,
	}
}

func (s *Server) Start() error {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)
	portAddr := ":" + s.config.ServerPort
	fmt.Printf("Starting API server on %s\n", portAddr)
	return r.Run(portAddr)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Static routes for raw segments and finished clips
	r.Static("/videos", s.config.VideosDir)
	r.Static("/clips", s.config.ClipsDir)

	r.GET("/status", s.getStatus)
	r.POST("/start-stream", s.startStream)
	r.POST("/stop-stream", s.stopStream)
	r.GET("/videos-list", s.listVideos)
	r.GET("/videos-by-camera/:address", s.listVideosByCamera)
	r.GET("/latest-video", s.latestVideo)
	r.POST("/upload-video", s.uploadVideo)
	r.GET("/live/:address", s.liveRelay)

	r.GET("/ws", s.hub.ServeWS)
	r.GET("/ws/camera", events.ServeCameraWS(s.registry))

	api := r.Group("/api")
	{
		api.GET("/clips/:detectionId", s.getClip)
		api.GET("/detections/:videoId", s.listDetections)
	}
}
