package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service liveness along with store and queue state
func HealthHandler(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		}
		code := http.StatusOK

		if deps.StoreStatus != nil {
			body["store"] = deps.StoreStatus.Mode()
			if err := deps.StoreStatus.Ping(c.Request.Context()); err != nil {
				body["status"] = "unhealthy"
				body["error"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if deps.BrokerConnected != nil {
			connected := deps.BrokerConnected()
			body["broker_connected"] = connected
			if !connected {
				body["status"] = "unhealthy"
				code = http.StatusServiceUnavailable
			}
		}
		if deps.QueueDepth != nil {
			body["queue_depth"] = deps.QueueDepth()
		}

		c.JSON(code, body)
	}
}
