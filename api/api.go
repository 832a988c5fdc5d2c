package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/paybridge/paybridge"
	"github.com/paybridge/paybridge/api/middleware"
	"github.com/paybridge/paybridge/config"
)

type Api struct {
	bridge  *paybridge.PayBridge
	monitor *paybridge.SelfHealingMonitor
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/downstream", a.RouteDownstream)

	router.GET("/multi-level-auth/resolve/:tenantId", a.ResolveAuthConfiguration)

	router.POST("/auth-configurations", a.CreateAuthConfiguration)
	router.GET("/auth-configurations", a.GetAuthConfigurations)
	router.GET("/auth-configurations/:id", a.GetAuthConfiguration)
	router.PUT("/auth-configurations/:id", a.UpdateAuthConfiguration)
	router.DELETE("/auth-configurations/:id", a.DeactivateAuthConfiguration)

	router.POST("/resiliency-configurations", a.CreateResiliencyConfiguration)
	router.GET("/resiliency-configurations", a.GetAllResiliencyConfigurations)
	router.GET("/resiliency-configurations/:id", a.GetResiliencyConfiguration)
	router.PUT("/resiliency-configurations/:id", a.UpdateResiliencyConfiguration)
	router.DELETE("/resiliency-configurations/:id", a.DeleteResiliencyConfiguration)

	router.GET("/breakers", a.GetBreakerSnapshots)
	router.POST("/breakers/:service/open", a.OpenBreaker)
	router.POST("/breakers/:service/reset", a.ResetBreaker)

	router.GET("/queue/messages", a.GetQueuedMessages)
	router.GET("/queue/messages/:id", a.GetQueuedMessage)
	router.POST("/queue/messages/:id/cancel", a.CancelQueuedMessage)
	router.POST("/queue/messages/:id/retry-now", a.RetryMessageNow)
	router.POST("/queue/reprocess", a.ReprocessAll)

	router.POST("/services", a.RecordDownstreamService)
	router.GET("/services", a.GetDownstreamServices)
	router.GET("/services/health", a.GetServiceHealth)
	router.POST("/tenants/access", a.RecordTenantAccess)

	router.GET("/backup", a.BackupDB)
	router.GET("/backup-s3", a.BackupDBS3)

	return a.router
}

func NewAPI(b *paybridge.PayBridge, monitor *paybridge.SelfHealingMonitor) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("paybridge"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{bridge: b, monitor: monitor, router: r}
}
