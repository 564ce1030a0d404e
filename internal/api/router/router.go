package router

import (
	"net/http"

	"github.com/fissura/inspection-be/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "analysis-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	api := r.Group("/api")
	{
		jobs := api.Group("/jobs")
		{
			// GET /api/jobs - List all jobs
			jobs.GET("", jobHandler.ListJobs)

			// POST /api/jobs - Create a job from a partial spec
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// PUT /api/jobs/:job_id - Patch a job
			jobs.PUT("/:job_id", jobHandler.UpdateJob)

			// DELETE /api/jobs/:job_id - Delete a job
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)
		}

		// POST /api/enqueue - Producer-facing analysis request
		api.POST("/enqueue", jobHandler.EnqueueJob)
	}

	return r
}
