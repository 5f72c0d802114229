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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/tablelink/relay/api/model"
	"github.com/tablelink/relay/internal/apierror"
)

func (a Api) GetOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := a.relay.ListOrders(c.Request.Context(), limit, offset)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetOrder(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.relay.GetOrder(c.Request.Context(), id)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) AdvanceOrder(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.relay.AdvanceOrder(c.Request.Context(), id)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) TransitionOrder(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var transition model2.TransitionOrder
	if err := c.ShouldBindJSON(&transition); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := transition.ValidateTransitionOrder(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.relay.TransitionOrder(c.Request.Context(), id, transition.Status)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) CancelOrder(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.relay.CancelOrder(c.Request.Context(), id)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReprintOrder re-queues the order's print jobs regardless of any earlier
// print outcome.
func (a Api) ReprintOrder(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	order, err := a.relay.GetOrder(c.Request.Context(), id)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	if err := a.relay.Dispatcher().DispatchOrder(c.Request.Context(), order); err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": order.OrderID, "status": "queued"})
}

// jsonError renders an error with the right status code.
func (a Api) jsonError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
