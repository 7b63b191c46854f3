package httpapi

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/smartctf/filevault/internal/common"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func newTokenResponse(token string) tokenResponse {
	return tokenResponse{AccessToken: token, TokenType: "bearer"}
}

type uploadResponse struct {
	FileID    int64  `json:"file_id"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
	Dedup     bool   `json:"dedup"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.db.PingContext(c.UserContext()); err != nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "database unreachable")
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "malformed request body")
	}
	if req.Username == "" || req.Password == "" {
		return errorResponse(c, fiber.StatusBadRequest, "username and password are required")
	}

	token, err := s.users.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return errorResponse(c, fiber.StatusConflict, "username already taken")
		}
		s.logger.Error(c.UserContext(), "register failed", "error", err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "internal error")
	}

	return c.JSON(newTokenResponse(token))
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "malformed request body")
	}

	token, err := s.users.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return errorResponse(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		s.logger.Error(c.UserContext(), "login failed", "error", err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "internal error")
	}

	return c.JSON(newTokenResponse(token))
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	userID := userIDFromCtx(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "multipart field 'file' is required")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "unreadable multipart payload")
	}
	defer f.Close()

	res, err := s.uploads.Upload(c.UserContext(), userID, f,
		fileHeader.Filename, fileHeader.Header.Get(fiber.HeaderContentType))
	if err != nil {
		if errors.Is(err, common.ErrIngest) {
			return errorResponse(c, fiber.StatusBadRequest, "upload stream aborted")
		}
		s.logger.Error(c.UserContext(), "upload failed", "user_id", userID, "error", err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "internal error")
	}

	return c.Status(fiber.StatusCreated).JSON(uploadResponse{
		FileID:    res.OwnershipID,
		SHA256:    res.SHA256,
		SizeBytes: res.SizeBytes,
		Dedup:     res.Dedup,
	})
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	userID := userIDFromCtx(c)

	fileID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || fileID <= 0 {
		return errorResponse(c, fiber.StatusBadRequest, "invalid file id")
	}

	dl, err := s.downloads.Resolve(c.UserContext(), userID, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "file not found")
		}
		s.logger.Error(c.UserContext(), "download failed",
			"user_id", userID, "file_id", fileID, "error", err.Error())
		return errorResponse(c, fiber.StatusInternalServerError, "internal error")
	}

	c.Set(fiber.HeaderContentType, dl.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.Filename))
	return c.SendStream(dl.Stream, bodySize(dl.SizeBytes))
}

// bodySize narrows a blob size to int for SendStream. When the size does not
// fit (32-bit platforms, blobs over 2 GiB) the stream is sent unsized.
func bodySize(n int64) int {
	size := int(n)
	if int64(size) != n {
		return -1
	}
	return size
}
