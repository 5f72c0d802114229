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

	"github.com/gin-gonic/gin"

	model2 "github.com/tablelink/relay/api/model"
	"github.com/tablelink/relay/model"
)

// GetHealth reports per-transport health, the active transport, and the
// depths of the retry queues.
func (a Api) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	pendingPrints, err := a.relay.Datasource().CountPrintJobsByStatus(ctx, model.PrintPending)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	failedPrints, err := a.relay.Datasource().CountPrintJobsByStatus(ctx, model.PrintFailed)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	pendingAcks, err := a.relay.Acks().PendingCount(ctx)
	if err != nil {
		a.jsonError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active_transport": a.relay.Failover().Active(),
		"override":         a.relay.Failover().Override(),
		"offline":          a.relay.Failover().Offline(),
		"transports":       a.relay.Monitor().Snapshot(),
		"push_connected":   a.relay.Push().Connected(),
		"queues": gin.H{
			"print_pending": pendingPrints,
			"print_failed":  failedPrints,
			"acks_pending":  pendingAcks,
		},
	})
}

// OverrideConnection pins the active transport, or unpins it when the body
// names NONE.
func (a Api) OverrideConnection(c *gin.Context) {
	var override model2.ConnectionOverride
	if err := c.ShouldBindJSON(&override); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := override.ValidateConnectionOverride(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	active := a.relay.Failover().SetOverride(model.TransportType(override.Transport))
	c.JSON(http.StatusOK, gin.H{
		"override": override.Transport,
		"active":   active,
	})
}

// RetryFailedPrintJobs revives every dead-lettered print job.
func (a Api) RetryFailedPrintJobs(c *gin.Context) {
	revived, err := a.relay.PrintQueue().RetryAllFailed(c.Request.Context())
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revived": revived})
}

// TestPrint queues a test page on the named printer.
func (a Api) TestPrint(c *gin.Context) {
	var testPrint model2.TestPrint
	if err := c.ShouldBindJSON(&testPrint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := testPrint.ValidateTestPrint(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	job, err := a.relay.Dispatcher().DispatchTest(c.Request.Context(), testPrint.PrinterID)
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// FlushAcks pushes every parked acknowledgment to the platform in one batch.
func (a Api) FlushAcks(c *gin.Context) {
	flushed, err := a.relay.Acks().FlushAll(c.Request.Context())
	if err != nil {
		a.jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flushed": flushed})
}
