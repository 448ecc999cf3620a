package handlers

import (
	"net/http"

	"github.com/Anuj5504/cloudbox/internal/apperr"
	"github.com/Anuj5504/cloudbox/internal/auth"
	"github.com/Anuj5504/cloudbox/internal/files"
	"github.com/Anuj5504/cloudbox/internal/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Handler struct {
	Files *files.Service
	Log   *zap.Logger
}

func NewHandler(svc *files.Service, log *zap.Logger) *Handler {
	return &Handler{Files: svc, Log: log}
}

// Register mounts the file routes on an authenticated group.
func (h *Handler) Register(api *echo.Group) {
	api.GET("/files", h.ListFilesHandler)
	api.POST("/files/upload", h.UploadHandler)
	api.POST("/files/folder", h.CreateFolderHandler)
	api.GET("/files/starred", h.ListStarredHandler)
	api.GET("/files/trash", h.ListTrashHandler)
	api.DELETE("/files/trash", h.EmptyTrashHandler)
	api.GET("/files/:fileId", h.GetFileHandler)
	api.PATCH("/files/:fileId/star", h.ToggleStarHandler)
	api.PATCH("/files/:fileId/trash", h.TrashHandler)
	api.PATCH("/files/:fileId/restore", h.RestoreHandler)
	api.PATCH("/files/:fileId/rename", h.RenameHandler)
	api.PATCH("/files/:fileId/move", h.MoveHandler)
	api.DELETE("/files/:fileId", h.DeleteHandler)
	api.GET("/usage", h.UsageHandler)
}

// optionalID maps the "no parent" spellings clients send to nil.
func optionalID(raw string) *string {
	if raw == "" || raw == "null" || raw == "root" {
		return nil
	}
	return &raw
}

type listResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	UserFiles []models.FileRecord `json:"userFiles"`
}

// ListFilesHandler returns the children of parentId, or the root level.
func (h *Handler) ListFilesHandler(c echo.Context) error {
	records, err := h.Files.ListChildren(
		c.Request().Context(),
		auth.UserID(c),
		c.QueryParam("userId"),
		optionalID(c.QueryParam("parentId")),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Success: true, Message: "Fetched data", UserFiles: records})
}

// UploadHandler streams a multipart file to the storage provider and saves
// its metadata.
func (h *Handler) UploadHandler(c echo.Context) error {
	in := files.CreateFileInput{
		OwnerID:  c.FormValue("userId"),
		ParentID: optionalID(c.FormValue("parentId")),
	}

	fh, err := c.FormFile("file")
	if err == nil {
		src, err := fh.Open()
		if err != nil {
			return apperr.InvalidInput("could not read uploaded file")
		}
		defer src.Close()

		in.Name = fh.Filename
		in.MimeType = fh.Header.Get("Content-Type")
		in.Size = fh.Size
		in.Body = src
	}

	rec, err := h.Files.CreateFile(c.Request().Context(), auth.UserID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

type createFolderRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	UserID   string  `json:"userId" validate:"required"`
	ParentID *string `json:"parentId"`
}

func (h *Handler) CreateFolderHandler(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var parentID *string
	if req.ParentID != nil {
		parentID = optionalID(*req.ParentID)
	}
	rec, err := h.Files.CreateFolder(c.Request().Context(), auth.UserID(c), files.CreateFolderInput{
		OwnerID:  req.UserID,
		ParentID: parentID,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetFileHandler(c echo.Context) error {
	rec, err := h.Files.Get(c.Request().Context(), auth.UserID(c), c.Param("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ToggleStarHandler(c echo.Context) error {
	rec, err := h.Files.ToggleStar(c.Request().Context(), auth.UserID(c), c.Param("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListStarredHandler(c echo.Context) error {
	records, err := h.Files.ListStarred(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Success: true, Message: "Fetched starred files", UserFiles: records})
}

func (h *Handler) TrashHandler(c echo.Context) error {
	rec, err := h.Files.Trash(c.Request().Context(), auth.UserID(c), c.Param("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) RestoreHandler(c echo.Context) error {
	rec, err := h.Files.Restore(c.Request().Context(), auth.UserID(c), c.Param("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListTrashHandler(c echo.Context) error {
	records, err := h.Files.ListTrash(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Success: true, Message: "Fetched trash", UserFiles: records})
}

func (h *Handler) EmptyTrashHandler(c echo.Context) error {
	n, err := h.Files.EmptyTrash(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "deleted": n})
}

// DeleteHandler permanently removes a trashed record.
func (h *Handler) DeleteHandler(c echo.Context) error {
	if err := h.Files.DeleteForever(c.Request().Context(), auth.UserID(c), c.Param("fileId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (h *Handler) RenameHandler(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rec, err := h.Files.Rename(c.Request().Context(), auth.UserID(c), c.Param("fileId"), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

type moveRequest struct {
	ParentID *string `json:"parentId"`
}

// MoveHandler reparents a record. A null or missing parentId moves it to the
// root level.
func (h *Handler) MoveHandler(c echo.Context) error {
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	var parentID *string
	if req.ParentID != nil {
		parentID = optionalID(*req.ParentID)
	}
	rec, err := h.Files.Move(c.Request().Context(), auth.UserID(c), c.Param("fileId"), parentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UsageHandler(c echo.Context) error {
	usage, err := h.Files.Usage(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, usage)
}
