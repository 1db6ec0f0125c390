package handlers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionAdmin = "admin"

// AdminRequired aborts requests whose session has not passed Login.
func AdminRequired(c *gin.Context) {
	session := sessions.Default(c)
	if admin, _ := session.Get(sessionAdmin).(bool); !admin {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// Login checks the admin password and marks the session.
func (a *API) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if a.cfg.AdminPassword == "" || req.Password != a.cfg.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAdmin, true)
	if err := session.Save(); err != nil {
		a.logger.Error("save session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Logout clears the session.
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		a.logger.Error("save session", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
