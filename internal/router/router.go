package router

import (
	"traffic-exp/internal/handler"
	"traffic-exp/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func SetupRouter(runner *service.ExperimentRunner, db *gorm.DB) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	experimentHandler := handler.NewExperimentHandler(runner, db)

	api := r.Group("/api")
	{
		experiments := api.Group("/experiments")
		{
			experiments.GET("", experimentHandler.ListRuns)
			experiments.GET("/:id", experimentHandler.GetRun)
			experiments.POST("/run", experimentHandler.RunExperiment)
			experiments.POST("/score", experimentHandler.ScoreExperiment)
		}
	}

	return r
}
