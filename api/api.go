/*
Copyright 2025 Tablelink Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tablelink/relay"
	"github.com/tablelink/relay/api/middleware"
	"github.com/tablelink/relay/config"
)

// Api is the local ops surface: the endpoints the restaurant's front-of-house
// application and support staff use to look at orders, kick the printers and
// steer the connection.
type Api struct {
	relay  *relay.Relay
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/health", a.GetHealth)
	router.POST("/connection/override", a.OverrideConnection)

	router.GET("/orders", a.GetOrders)
	router.GET("/orders/:id", a.GetOrder)
	router.PUT("/orders/:id/advance", a.AdvanceOrder)
	router.PUT("/orders/:id/status", a.TransitionOrder)
	router.PUT("/orders/:id/cancel", a.CancelOrder)
	router.POST("/orders/:id/reprint", a.ReprintOrder)

	router.POST("/print-jobs/retry-failed", a.RetryFailedPrintJobs)
	router.POST("/print-jobs/test", a.TestPrint)

	router.POST("/acks/flush", a.FlushAcks)

	return a.router
}

func NewAPI(r *relay.Relay) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.Default()
	router.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		router.Use(middleware.SecretKeyAuthMiddleware())
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, "relay running...")
	})

	return &Api{relay: r, router: router}
}
