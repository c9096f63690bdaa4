package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-processing-platform/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HandleDocumentsReport streams one user's document ledger as an xlsx
// download.
func HandleDocumentsReport(reports ReportRenderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		if format := c.DefaultQuery("format", "xlsx"); format != "xlsx" {
			utils.RespondWithBadRequest(c, "Unsupported report format", gin.H{"allowed": []string{"xlsx"}})
			return
		}
		statusFilter, ok := statusFilterParam(c)
		if !ok {
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		data, err := reports.BuildDocumentsWorkbook(ctx, userID, statusFilter)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build report", nil)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=documents-%d.xlsx", userID))
		c.Data(http.StatusOK, xlsxContentType, data)
	}
}
