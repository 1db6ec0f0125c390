package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"kbase/pkg/config"
	"kbase/pkg/services"
)

// API holds the collaborators every handler needs. One instance per
// process, wired by NewRouter.
type API struct {
	store  *services.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewRouter builds the gin engine with all routes attached. When an admin
// password is configured, mutating routes require a logged-in session;
// with the default empty password the gate is off.
func NewRouter(store *services.Store, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	api := &API{store: store, cfg: cfg, logger: logger}

	r := gin.Default()
	r.Use(sessions.Sessions("kbsession", cookie.NewStore([]byte(cfg.SessionSecret))))

	g := r.Group("/api")
	g.GET("/sections", api.GetSections)
	g.GET("/content", api.GetContent)
	g.GET("/files", api.GetFiles)
	g.GET("/file", api.DownloadFile)
	g.GET("/search", api.Search)
	g.POST("/login", api.Login)
	g.POST("/logout", api.Logout)

	w := g.Group("")
	if cfg.AdminPassword != "" {
		w.Use(AdminRequired)
	}
	w.POST("/save_content", api.SaveContent)
	w.POST("/upload_file", api.UploadFile)
	w.POST("/sections", api.AddSection)
	w.DELETE("/sections/:name", api.DeleteSection)
	w.POST("/categories", api.AddCategory)
	w.DELETE("/sections/:name/categories/:category", api.DeleteCategory)

	return r
}

func (a *API) GetSections(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.Sections())
}

func (a *API) GetContent(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "content": a.store.LoadContent(key)})
}

func (a *API) SaveContent(c *gin.Context) {
	var req struct {
		Key     string  `json:"key" binding:"required"`
		Content *string `json:"content" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key and content are required"})
		return
	}
	a.store.SaveContent(req.Key, *req.Content)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *API) GetFiles(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	names := []string{}
	for _, f := range a.store.Files(key) {
		names = append(names, f.Name)
	}
	c.JSON(http.StatusOK, gin.H{"files": names})
}

func (a *API) UploadFile(c *gin.Context) {
	key := c.PostForm("key")
	header, err := c.FormFile("file")
	if key == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key and file are required"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	stored := a.store.AddFile(key, filepath.Base(header.Filename), data)
	c.JSON(http.StatusOK, gin.H{"status": "success", "name": stored})
}

func (a *API) DownloadFile(c *gin.Context) {
	key := c.Query("key")
	name := c.Query("name")
	if key == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key and name are required"})
		return
	}
	data, ok := a.store.LoadFile(key, name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
}

func (a *API) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	matches, progress := services.ScanContent(c.Request.Context(), a.store.Documents(), query)
	results := []services.Match{}
	for matches != nil || progress != nil {
		select {
		case m, ok := <-matches:
			if !ok {
				matches = nil
				continue
			}
			results = append(results, m)
		case _, ok := <-progress:
			if !ok {
				progress = nil
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

func (a *API) AddSection(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if !a.store.AddSection(req.Name) {
		c.JSON(http.StatusConflict, gin.H{"error": "section already exists or name is invalid"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "created"})
}

func (a *API) DeleteSection(c *gin.Context) {
	if !a.store.DeleteSection(c.Param("name")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (a *API) AddCategory(c *gin.Context) {
	var req struct {
		Section string `json:"section" binding:"required"`
		Name    string `json:"name" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "section and name are required"})
		return
	}
	if !a.store.AddCategory(req.Section, req.Name) {
		c.JSON(http.StatusConflict, gin.H{"error": "category already exists or section not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "created"})
}

func (a *API) DeleteCategory(c *gin.Context) {
	if !a.store.DeleteCategory(c.Param("name"), c.Param("category")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
