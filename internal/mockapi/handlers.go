// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
)

// recordTimeLayout is how record creation times are rendered.
const recordTimeLayout = "2006-01-02 15:04:05"

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"code": -1, "message": msg})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"code": -1, "message": msg})
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// chat streams a reply word by word. The first frame carries the record id.
func (s *Server) chat(c *gin.Context) {
	var req agentapi.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(c, "message is required")
		return
	}

	agent := Agent{Name: "Assistant"}
	if req.AgentID != nil {
		a, ok := s.store.Agent(*req.AgentID)
		if !ok {
			notFound(c, "agent not found")
			return
		}
		agent = a
	}

	var record int64
	if req.Type == agentapi.ChatContinue {
		if req.RecordID == nil {
			badRequest(c, "record_id is required to continue a conversation")
			return
		}
		record = *req.RecordID
	}

	recordID, turnID, err := s.store.StartTurn(userID(c), agent.ID, record, req.Message)
	if errors.Is(err, ErrRecordNotFound) {
		notFound(c, err.Error())
		return
	}

	reply := s.respond(agent, req.Message)
	ctx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	var sent strings.Builder
	defer func() {
		s.store.FinishTurn(recordID, turnID, sent.String())
	}()

	for i, token := range strings.SplitAfter(reply, " ") {
		frame := gin.H{"delta": token}
		if i == 0 {
			frame["record_id"] = strconv.FormatInt(recordID, 10)
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("client went away mid-stream", "record", recordID)
			return
		default:
		}

		c.SSEvent("", frame)
		c.Writer.Flush()
		sent.WriteString(token)

		if s.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.chunkDelay):
			}
		}
	}

	c.SSEvent("", gin.H{"done": true})
	c.Writer.Flush()
}

// =============================================================================
// HISTORY
// =============================================================================

func (s *Server) sessions(c *gin.Context) {
	var q agentapi.HistoryQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	if q.RecordID == 0 {
		badRequest(c, "record_id is required")
		return
	}

	turns, total, err := s.store.Sessions(userID(c), q.RecordID, q.Page, q.PerPage)
	if err != nil {
		notFound(c, err.Error())
		return
	}

	rows := make([]gin.H, 0, len(turns))
	for _, t := range turns {
		rows = append(rows, gin.H{
			"id":         t.ID,
			"created_at": t.CreatedAt.UnixMilli(),
			"input":      t.Input,
			"output":     t.Output,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

func (s *Server) records(c *gin.Context) {
	var q agentapi.RecordQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	records, total := s.store.Records(userID(c), q.AgentID, q.Keyword, q.Page, q.PerPage)
	rows := make([]gin.H, 0, len(records))
	for _, r := range records {
		rows = append(rows, gin.H{
			"id":         r.ID,
			"record_id":  r.ID,
			"name":       r.Name,
			"created_at": r.CreatedAt.Format(recordTimeLayout),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}

// =============================================================================
// AGENTS
// =============================================================================

func (s *Server) agents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	agents, total := s.store.Agents(c.Query("q"), page, perPage)
	rows := make([]gin.H, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, gin.H{
			"id":          a.ID,
			"name":        a.Name,
			"description": a.Description,
			"tags":        a.Tags,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"rows": rows, "total": total}})
}
