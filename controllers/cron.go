package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobboard/scheduler"
)

// Task names served under /cron.
const (
	TaskOnboardATS         = "onboard-ats"
	TaskSyncJobs           = "sync-jobs"
	TaskEnrichJobFunctions = "enrich-job-functions"
	TaskEnrichInvestors    = "enrich-investors"
	TaskDiscoverATS        = "discover-ats"
)

type CronController struct {
	Tasks  map[string]scheduler.Task
	Logger *zap.SugaredLogger
}

// cronResponse reports one bounded invocation. Runtime is in milliseconds.
//
// Records an enrichment run could not classify stay eligible, so a poller that
// always starts without a cursor can see hasMore forever once they outnumber
// one budget. Pollers pass nextCursor back as ?cursor= until hasMore is false
// and then start over from the front.
type cronResponse struct {
	Success    bool  `json:"success"`
	HasMore    bool  `json:"hasMore"`
	Processed  int   `json:"processed"`
	Updated    int   `json:"updated"`
	Failed     int   `json:"failed"`
	NextCursor *uint `json:"nextCursor,omitempty"`
	Runtime    int64 `json:"runtime"`
}

func (cc CronController) Run(c *gin.Context) {
	name := c.Param("task")
	task, ok := cc.Tasks[name]
	if !ok {
		RespondErr(c, http.StatusNotFound, ErrUnknownTask)
		return
	}

	var cursor uint
	if v := c.Query("cursor"); v != "" {
		n, err := strconv.ParseUint(v, 10, 0)
		if err != nil {
			RespondBadRequestErr(c, ErrMalformedBody)
			return
		}
		cursor = uint(n)
	}

	logger := cc.Logger.With("task", name, "cursor", cursor, "request_id", c.GetString(requestIDKey))

	p, err := task.Run(c.Request.Context(), cursor)
	if err != nil {
		logger.Errorw("cron task failed", "error", err)
		RespondInternalErr(c)
		return
	}

	res := cronResponse{
		Success:   true,
		HasMore:   p.HasMore,
		Processed: p.Processed,
		Updated:   p.Updated,
		Failed:    p.Failed,
		Runtime:   p.Runtime.Milliseconds(),
	}
	if p.HasMore && p.NextCursor > 0 {
		next := p.NextCursor
		res.NextCursor = &next
	}

	logger.Infow("cron task finished",
		"processed", p.Processed,
		"updated", p.Updated,
		"failed", p.Failed,
		"has_more", p.HasMore,
	)
	RespondOK(c, res)
}
