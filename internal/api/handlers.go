package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slatenotes/slate/internal/remotedb"
	"github.com/slatenotes/slate/internal/schema"
)

type folderBody struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	ParentID  *string    `json:"parentId"`
	SortOrder int        `json:"sortOrder"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

// folderPatch keeps parentId raw so an explicit null can be told apart
// from an absent field.
type folderPatch struct {
	Name      *string         `json:"name"`
	ParentID  json.RawMessage `json:"parentId"`
	SortOrder *int            `json:"sortOrder"`
	UpdatedAt *time.Time      `json:"updatedAt"`
}

type noteBody struct {
	ID        string     `json:"id"`
	FolderID  string     `json:"folderId"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	PlainText string     `json:"plainText"`
	SortOrder int        `json:"sortOrder"`
	CreatedAt *time.Time `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type notePatch struct {
	FolderID  *string    `json:"folderId"`
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	PlainText *string    `json:"plainText"`
	SortOrder *int       `json:"sortOrder"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Printf("%s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}

// sinceParam parses the optional since query parameter.
func sinceParam(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return nil, true
	}
	t, err := schema.ParseTime(raw)
	if err != nil {
		badRequest(c, "invalid since: "+err.Error())
		return nil, false
	}
	return &t, true
}

func (s *Server) changed(entity schema.EntityType, action schema.Action, id string) {
	s.hub.Publish(schema.ChangeEvent{Entity: entity, Action: action, ID: id})
}

func (s *Server) listFolders(c *gin.Context) {
	since, ok := sinceParam(c)
	if !ok {
		return
	}
	folders, err := s.db.ListFolders(c.Request.Context(), since)
	if err != nil {
		s.internalError(c, "list folders", err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (s *Server) createFolder(c *gin.Context) {
	var body folderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid folder: "+err.Error())
		return
	}
	if body.ID == "" {
		badRequest(c, "id is required")
		return
	}

	f := &schema.Folder{
		ID:        body.ID,
		Name:      body.Name,
		ParentID:  body.ParentID,
		SortOrder: body.SortOrder,
		CreatedAt: timeOrZero(body.CreatedAt),
		UpdatedAt: timeOrZero(body.UpdatedAt),
	}
	if err := s.db.InsertFolder(c.Request.Context(), f); err != nil {
		s.internalError(c, "create folder", err)
		return
	}
	s.changed(schema.EntityFolder, schema.ActionCreate, f.ID)
	c.JSON(http.StatusCreated, gin.H{"id": f.ID})
}

func (s *Server) updateFolder(c *gin.Context) {
	id := c.Param("id")
	var body folderPatch
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid folder: "+err.Error())
		return
	}

	u := remotedb.FolderUpdate{Name: body.Name, SortOrder: body.SortOrder, UpdatedAt: body.UpdatedAt}
	if len(body.ParentID) > 0 {
		u.SetParent = true
		if err := json.Unmarshal(body.ParentID, &u.ParentID); err != nil {
			badRequest(c, "invalid parentId")
			return
		}
	}

	found, err := s.db.UpdateFolder(c.Request.Context(), id, u)
	if err != nil {
		s.internalError(c, "update folder", err)
		return
	}
	if found {
		s.changed(schema.EntityFolder, schema.ActionUpdate, id)
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) deleteFolder(c *gin.Context) {
	id := c.Param("id")
	if err := s.db.DeleteFolder(c.Request.Context(), id); err != nil {
		s.internalError(c, "delete folder", err)
		return
	}
	s.changed(schema.EntityFolder, schema.ActionDelete, id)
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) listNotes(c *gin.Context) {
	since, ok := sinceParam(c)
	if !ok {
		return
	}
	notes, err := s.db.ListNotes(c.Request.Context(), remotedb.NoteFilter{
		Since:    since,
		FolderID: c.Query("folderId"),
	})
	if err != nil {
		s.internalError(c, "list notes", err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

func (s *Server) createNote(c *gin.Context) {
	var body noteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid note: "+err.Error())
		return
	}
	if body.ID == "" {
		badRequest(c, "id is required")
		return
	}
	if body.FolderID == "" {
		badRequest(c, "folderId is required")
		return
	}

	n := &schema.Note{
		ID:        body.ID,
		FolderID:  body.FolderID,
		Title:     body.Title,
		Content:   body.Content,
		PlainText: body.PlainText,
		SortOrder: body.SortOrder,
		CreatedAt: timeOrZero(body.CreatedAt),
		UpdatedAt: timeOrZero(body.UpdatedAt),
	}
	if err := s.db.InsertNote(c.Request.Context(), n); err != nil {
		s.internalError(c, "create note", err)
		return
	}
	s.changed(schema.EntityNote, schema.ActionCreate, n.ID)
	c.JSON(http.StatusCreated, gin.H{"id": n.ID})
}

func (s *Server) updateNote(c *gin.Context) {
	id := c.Param("id")
	var body notePatch
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid note: "+err.Error())
		return
	}

	found, err := s.db.UpdateNote(c.Request.Context(), id, remotedb.NoteUpdate{
		FolderID:  body.FolderID,
		Title:     body.Title,
		Content:   body.Content,
		PlainText: body.PlainText,
		SortOrder: body.SortOrder,
		UpdatedAt: body.UpdatedAt,
	})
	if err != nil {
		s.internalError(c, "update note", err)
		return
	}
	if found {
		s.changed(schema.EntityNote, schema.ActionUpdate, id)
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) deleteNote(c *gin.Context) {
	id := c.Param("id")
	if err := s.db.DeleteNote(c.Request.Context(), id); err != nil {
		s.internalError(c, "delete note", err)
		return
	}
	s.changed(schema.EntityNote, schema.ActionDelete, id)
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusOK, []*schema.SearchHit{})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	hits, err := s.db.SearchNotes(c.Request.Context(), q, limit)
	if err != nil {
		s.internalError(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (s *Server) status(c *gin.Context) {
	st := schema.ServerStatus{DBConfigured: s.db != nil, APIVersion: schema.APIVersion}
	if s.db != nil {
		st.Dialect = string(s.db.Dialect())
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) health(c *gin.Context) {
	code, state := http.StatusOK, "ok"
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			s.logger.Printf("health check failed: %v", err)
			code, state = http.StatusServiceUnavailable, "degraded"
		}
	}
	c.JSON(code, gin.H{
		"status":      state,
		"subscribers": s.hub.ClientCount(),
	})
}
