package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartbudget/internal/core"
	"smartbudget/internal/export"
	"smartbudget/internal/finance"
	applog "smartbudget/internal/log"
	"smartbudget/internal/storage"
)

const (
	formatJSON = "json"
	formatXLSX = "xlsx"
)

// writeError maps domain errors to status codes. Unexpected errors are
// recorded on the context for the request log and not echoed to the client.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, finance.ErrNotReady),
		errors.Is(err, storage.ErrNotInitialized),
		errors.Is(err, storage.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	case core.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrDuplicateKey):
		status = http.StatusConflict
	}

	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) handleReady(c *gin.Context) {
	if state := s.finance.State(); state != finance.StateReady {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": state.String()})
		return
	}
	c.String(http.StatusOK, "ok")
}

func (s *Server) listTransactions(c *gin.Context) {
	period, err := core.ParsePeriod(c.Query("period"))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, finance.FilterByPeriod(s.finance.Transactions(), period, s.now()))
}

func (s *Server) createTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err)
		return
	}

	tx, err := s.finance.AddTransaction(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (s *Server) updateTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err)
		return
	}

	tx, err := s.finance.UpdateTransaction(c.Request.Context(), core.Transaction{
		ID:          c.Param("id"),
		Type:        in.Type,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *Server) deleteTransaction(c *gin.Context) {
	if err := s.finance.DeleteTransaction(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listCategories(c *gin.Context) {
	categories := s.finance.Categories()

	typ := core.TransactionType(strings.ToLower(strings.TrimSpace(c.Query("type"))))
	if typ == "" {
		c.JSON(http.StatusOK, categories)
		return
	}
	if !typ.IsValid() {
		badRequest(c, fmt.Errorf("%w: %q", core.ErrInvalidType, typ))
		return
	}

	filtered := make([]core.Category, 0, len(categories))
	for _, cat := range categories {
		if cat.Type == typ {
			filtered = append(filtered, cat)
		}
	}
	c.JSON(http.StatusOK, filtered)
}

func (s *Server) listBudgets(c *gin.Context) {
	c.JSON(http.StatusOK, s.finance.Budgets())
}

func (s *Server) createBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, err)
		return
	}

	b, err := s.finance.AddBudget(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) getProfile(c *gin.Context) {
	p := s.finance.Profile()
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) saveProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := s.finance.SaveProfile(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getStats(c *gin.Context) {
	period, err := core.ParsePeriod(c.Query("period"))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.finance.Stats(period))
}

// exportSnapshot streams the snapshot as a download named after today's date.
func (s *Server) exportSnapshot(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", formatJSON))
	if format != formatJSON && format != formatXLSX {
		badRequest(c, fmt.Errorf("unsupported export format %q", format))
		return
	}

	data, err := s.finance.Export(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	contentType := "application/json"
	if format == formatXLSX {
		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, data); err != nil {
			writeError(c, err)
			return
		}
		data = buf.Bytes()
		contentType = export.ContentTypeXLSX
	}

	filename := export.Filename(s.now(), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)

	applog.FromContext(c.Request.Context()).Info("Export served",
		applog.FieldOperation, applog.OpExport, "format", format, "bytes", len(data))
}

func (s *Server) serveAssets(c *gin.Context) {
	if s.assets == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	// NoRoute presets 404; the asset handler decides the real status.
	c.Status(http.StatusOK)
	s.assets.ServeHTTP(c.Writer, c.Request)
}
