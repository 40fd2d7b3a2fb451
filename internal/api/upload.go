package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/duckmesh/tabletalk/internal/config"
	"github.com/duckmesh/tabletalk/internal/ingest"
)

// multipartOverhead is allowed on top of the file size limit for the form
// boundary and the table_name field.
const multipartOverhead = 1 << 20

const fileTooLargeDetail = "Uploaded file too large"

var errFileTooLarge = errors.New("uploaded file too large")

func handleUpload(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Ingest == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "UPLOAD_NOT_CONFIGURED", "upload dependencies are not configured", false, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Upload.MaxBytes+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "multipart form body is required")
		return
	}

	var tableName, savedPath, fileName string
	defer func() {
		if savedPath != "" && tableName == "" {
			_ = os.Remove(savedPath)
		}
	}()
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				writeDetail(w, http.StatusRequestEntityTooLarge, fileTooLargeDetail)
				return
			}
			writeDetail(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
			return
		}
		switch part.FormName() {
		case "table_name":
			value, err := io.ReadAll(io.LimitReader(part, 1024))
			if err != nil {
				writeDetail(w, http.StatusBadRequest, "invalid table_name field")
				return
			}
			tableName = strings.TrimSpace(string(value))
		case "file":
			if savedPath != "" {
				writeDetail(w, http.StatusBadRequest, "only one file may be uploaded")
				return
			}
			fileName = ingest.SecureFilename(part.FileName())
			if fileName == "" {
				uploadFailed(w, http.StatusBadRequest, errors.New("invalid filename"))
				return
			}
			savedPath, err = saveUpload(cfg.Upload, fileName, part)
			if err != nil {
				if errors.Is(err, errFileTooLarge) || isTooLarge(err) {
					writeDetail(w, http.StatusRequestEntityTooLarge, fileTooLargeDetail)
					return
				}
				deps.Logger.Error("save upload failed", "error", err)
				uploadFailed(w, http.StatusInternalServerError, err)
				return
			}
		}
		_ = part.Close()
	}

	if tableName == "" {
		writeDetail(w, http.StatusBadRequest, "table_name is required")
		return
	}
	if savedPath == "" {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}

	result, err := deps.Ingest.Ingest(r.Context(), ingest.Request{Path: savedPath, FileName: fileName, TableName: tableName})
	if err != nil {
		if errors.Is(err, ingest.ErrValidation) {
			deps.Logger.Info("upload rejected", "table", tableName, "file", fileName, "error", err)
			uploadFailed(w, http.StatusBadRequest, err)
			return
		}
		deps.Logger.Error("upload failed", "table", tableName, "file", fileName, "error", err)
		uploadFailed(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": result.Message})
}

// saveUpload writes body under cfg.Dir without overwriting an earlier upload
// of the same name.
func saveUpload(cfg config.UploadConfig, fileName string, body io.Reader) (string, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path, err := ingest.UniquePath(cfg.Dir, fileName)
	if err != nil {
		return "", err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	written, copyErr := io.Copy(file, io.LimitReader(body, cfg.MaxBytes+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", copyErr)
	case written > cfg.MaxBytes:
		_ = os.Remove(path)
		return "", errFileTooLarge
	case closeErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", closeErr)
	}
	return path, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func uploadFailed(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"status": "error", "message": "Upload failed: " + err.Error()})
}
