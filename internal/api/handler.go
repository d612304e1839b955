// Package api exposes the attendance service over HTTP.
package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"collegeattend/internal/attendance"
	"collegeattend/internal/auth"
)

// qrSize is the rendered PNG edge in pixels.
const qrSize = 300

// Handler serves the /attendance routes.
type Handler struct {
	svc *attendance.Service
}

// NewHandler creates the HTTP handler.
func NewHandler(svc *attendance.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r behind authn.
func (h *Handler) Register(r gin.IRouter, authn gin.HandlerFunc) {
	g := r.Group("/attendance", authn)
	manage := auth.Require(auth.Role.ManagesAttendance)

	g.POST("/generate-qr", manage, h.generateQR)
	g.POST("/mark-attendance", auth.Require(auth.Role.Redeems), h.markAttendance)
	g.GET("/sessions", manage, h.listSessions)
	g.GET("/sessions/:sessionId/attendance", manage, h.sessionAttendance)
	g.PUT("/sessions/:sessionId/close", manage, h.closeSession)
	g.DELETE("/sessions/:sessionId", manage, h.deleteSession)
	g.POST("/manual-mark", manage, h.manualMark)
	g.GET("/statistics", auth.Require(auth.AnyRole), h.statistics)
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(c)
	return p
}

type generateRequest struct {
	CourseID     string `json:"courseId" binding:"required"`
	SessionTitle string `json:"sessionTitle" binding:"required"`
	Duration     int    `json:"duration"`
	Location     string `json:"location"`
}

func (h *Handler) generateQR(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "course ID and session title are required")
		return
	}
	s, err := h.svc.CreateSession(c.Request.Context(), principal(c), attendance.NewSession{
		CourseID:        req.CourseID,
		Title:           req.SessionTitle,
		DurationMinutes: req.Duration,
		Location:        req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	qrData, err := attendance.Encode(s.SessionID, s.CourseID, s.CreatedAt)
	if err != nil {
		writeError(c, err)
		return
	}
	png, err := qrcode.Encode(qrData, qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, fmt.Errorf("render qr code: %w", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "QR code generated successfully",
		"session": s,
		"qrCode":  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"qrData":  qrData,
	})
}

type markRequest struct {
	QRData   string `json:"qrData" binding:"required"`
	Location string `json:"location"`
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "QR data is required")
		return
	}
	rec, err := h.svc.Redeem(c.Request.Context(), principal(c), req.QRData, req.Location)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance marked successfully", "attendance": rec})
}

func (h *Handler) listSessions(c *gin.Context) {
	p := principal(c)
	f := attendance.ListFilter{CourseID: c.Query("courseId")}
	if !p.Role.Overrides() {
		f.OwnerID = p.UserID
	}
	if raw := c.Query("includeExpired"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "includeExpired must be true or false")
			return
		}
		f.IncludeExpired = v
	}
	sessions, err := h.svc.ListSessions(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) sessionAttendance(c *gin.Context) {
	rep, err := h.svc.SessionAttendance(c.Request.Context(), principal(c), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) closeSession(c *gin.Context) {
	if err := h.svc.CloseSession(c.Request.Context(), principal(c), c.Param("sessionId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance session closed successfully"})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), principal(c), c.Param("sessionId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance session deleted successfully"})
}

type manualRequest struct {
	AttendanceRecords []attendance.ManualEntry `json:"attendanceRecords"`
}

func (h *Handler) manualMark(c *gin.Context) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "attendance records array is required")
		return
	}
	results, err := h.svc.ManualMark(c.Request.Context(), principal(c), req.AttendanceRecords)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Manual attendance marking completed", "results": results})
}

func (h *Handler) statistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context(), principal(c), attendance.StatsFilter{
		CourseID:  c.Query("courseId"),
		StudentID: c.Query("studentId"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
