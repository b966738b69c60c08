// Package blob хранит вложения: локальный каталог (на стороне шлюза) и HTTP-клиент к нему.
package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/collab/internal/logger"
	"github.com/google/uuid"
)

// Блокируем только опасные расширения (исполняемые/скрипты). Остальные — разрешены.
var BlockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true,
}

var (
	ErrBlocked  = errors.New("blob: file type not allowed")
	ErrMismatch = errors.New("blob: file content does not match type")
	ErrTooLarge = errors.New("blob: file too large")
	ErrBadPath  = errors.New("blob: invalid path")
)

// FilesPrefix — маршрут раздачи файлов на шлюзе.
const FilesPrefix = "/api/files/"

// UploadResponse — ответ после успешной загрузки.
type UploadResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

// Local хранит файлы в каталоге в сжатом виде (.gz).
type Local struct {
	Dir     string
	MaxSize int64
	// PublicURL — префикс публичных ссылок (например "http://localhost:8090"); пустой — относительные ссылки.
	PublicURL string
}

// NewLocal создаёт хранилище с заданным каталогом и лимитом размера (в байтах).
func NewLocal(dir string, maxSize int64, publicURL string) *Local {
	return &Local{Dir: dir, MaxSize: maxSize, PublicURL: strings.TrimSuffix(publicURL, "/")}
}

// cleanKey нормализует путь файла внутри хранилища: без "..", без ведущего "/".
func cleanKey(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if key == "" || key == "." {
		return "", ErrBadPath
	}
	return key, nil
}

// Upload сохраняет data под ключом p и возвращает публичную ссылку. Реализует composer.Uploader.
func (s *Local) Upload(ctx context.Context, p string, data []byte) (string, error) {
	defer logger.DeferLogDuration("blob.Upload", time.Now())()
	key, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	if s.MaxSize > 0 && int64(len(data)) > s.MaxSize {
		return "", ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(key))
	if BlockedExt[ext] {
		return "", ErrBlocked
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if !matchMagic(ext, head) {
		return "", ErrMismatch
	}
	if err := s.write(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("blob.Upload: %w", err)
	}
	return s.PublicURL + FilesPrefix + key, nil
}

func (s *Local) write(ctx context.Context, key string, src io.Reader) error {
	dstPath := filepath.Join(s.Dir, filepath.FromSlash(key)+".gz")
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if err := copyWithContext(ctx, gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return err
	}
	return nil
}

// Open возвращает распакованное содержимое файла по ключу.
func (s *Local) Open(p string) (io.ReadCloser, error) {
	key, err := cleanKey(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Dir, filepath.FromSlash(key)+".gz"))
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

func (s *Local) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("blob writeJSON: %v", err)
	}
}

func (s *Local) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// HandleUpload обрабатывает POST multipart/form-data с полем "file" и необязательным "path".
func (s *Local) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// В ряде клиентов/прокси пробел в имени кодируется как "+"; нормализуем для отображения и расширения.
	rawFilename := strings.ReplaceAll(header.Filename, "+", " ")
	key := r.FormValue("path")
	if key == "" {
		key = uuid.NewString() + strings.ToLower(filepath.Ext(rawFilename))
	}

	data, err := io.ReadAll(io.LimitReader(file, s.MaxSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	link, err := s.Upload(r.Context(), key, data)
	switch {
	case errors.Is(err, ErrTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrMismatch), errors.Is(err, ErrBadPath):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		if r.Context().Err() == nil {
			logger.Errorf("blob upload %s: %v", key, err)
			s.writeError(w, http.StatusInternalServerError, "failed to save file")
		}
		return
	}

	contentType := "file"
	if strings.HasPrefix(contentTypeByExt(filepath.Ext(key)), "image/") {
		contentType = "image"
	}
	// Имя для отображения: только базовая часть без пути, безопасные символы; иначе — ключ
	displayName := safeFilename(filepath.Base(rawFilename))
	if displayName == "" {
		displayName = path.Base(key)
	}
	s.writeJSON(w, http.StatusOK, UploadResponse{
		URL:         link,
		FileName:    displayName,
		FileSize:    int64(len(data)),
		ContentType: contentType,
	})
}

// Serve отдаёт файл по ключу (разархивирует при отдаче); query name= — оригинальное имя для Content-Disposition.
func (s *Local) Serve(w http.ResponseWriter, r *http.Request, key string) {
	if ct := contentTypeByExt(filepath.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if origName := r.URL.Query().Get("name"); origName != "" {
		origName = strings.TrimSpace(strings.ReplaceAll(origName, "+", " "))
		if safe := safeFilename(origName); safe != "" {
			disp := "attachment; filename*=UTF-8''" + url.QueryEscape(safe)
			if ascii := asciiFallbackFilename(safe); ascii == safe {
				disp = "attachment; filename=\"" + ascii + "\"; " + disp
			}
			w.Header().Set("Content-Disposition", disp)
		}
	}
	rc, err := s.Open(key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer rc.Close()
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Errorf("blob serve %s: %v", key, err)
	}
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP"))
	case ".pdf":
		return len(head) >= 5 && bytes.Equal(head[:5], []byte("%PDF-"))
	case ".docx":
		return len(head) >= 4 && head[0] == 0x50 && head[1] == 0x4B && (head[2] == 0x03 || head[2] == 0x05) && head[3] == 0x04
	}
	return true
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	}
	return ""
}

// safeFilename оставляет имя файла безопасным для Content-Disposition (без управляющих символов и кавычек).
func safeFilename(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\r', '\n', '"', '\\', '/', '\x00':
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func asciiFallbackFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}
