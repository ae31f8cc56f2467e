// Package public implements PublicEndpoint, spec.md §4.5: the HTTPS
// surface that terminates client connections, multiplexing discovery,
// websocket upgrades, and multipart conversion/upload/download POSTs.
// Routed with go-chi/chi/v5 and decorated with apierrors.ErrorHandler,
// following the teacher's pkg/api/v1 router-per-concern layout.
package public

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/loolbrokerd/pkg/apierrors"
	"github.com/stacklok/loolbrokerd/pkg/broker"
	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stacklok/loolbrokerd/pkg/idgen"
	"github.com/stacklok/loolbrokerd/pkg/logger"
	"github.com/stacklok/loolbrokerd/pkg/session"
	"github.com/stacklok/loolbrokerd/pkg/wsupgrade"
)

// Routes holds every collaborator PublicEndpoint needs. FileServer and
// AdminHandler are pluggable delegates (spec.md §1 names both explicitly
// out of core scope).
type Routes struct {
	Registry         *broker.Registry
	WorkerSessions   *session.AvailableWorkerSessions
	IDs              *idgen.Generator
	Terminate        *atomic.Bool
	ChildRoot        string

	FileServer   http.Handler
	AdminHandler http.Handler

	DiscoveryXMLPath     string
	MaxDocumentSizeBytes int64
}

// Router builds the chi.Router implementing spec.md §4.5's "routing by
// first path segment and method".
func (rt *Routes) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/hosting/discovery", apierrors.ErrorHandler(rt.handleDiscovery))
	r.Get("/hosting/capabilities", apierrors.ErrorHandler(rt.handleCapabilities))
	r.Handle("/loleaflet/*", rt.fileServerOrEmpty())
	r.Handle("/adminws/*", rt.adminHandlerOrEmpty())
	r.Post("/convert-to", apierrors.ErrorHandler(rt.handleConvertTo))
	r.Post("/insertfile", apierrors.ErrorHandler(rt.handleInsertFile))
	r.Post("/{jailid}/{subdir}/{file}", apierrors.ErrorHandler(rt.handleDownload))
	r.Get("/*", apierrors.ErrorHandler(rt.handleDocumentUpgrade))

	return r
}

func (rt *Routes) fileServerOrEmpty() http.Handler {
	if rt.FileServer != nil {
		return rt.FileServer
	}
	return http.NotFoundHandler()
}

func (rt *Routes) adminHandlerOrEmpty() http.Handler {
	if rt.AdminHandler != nil {
		return rt.AdminHandler
	}
	return http.NotFoundHandler()
}

// jailedDocumentRoot is the fixed in-jail path segment the original
// loolwsd source inserts between a jail's root and both the insertfile
// and download sub-paths (JAILED_DOCUMENT_ROOT, "user/docs").
const jailedDocumentRoot = "user/docs"

// attachCORS attaches the teacher's explicit-header-set CORS idiom (no
// third-party CORS middleware appears anywhere in the retrieval pack).
func attachCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// documentKey derives spec.md §3's DocumentKey from a request path: the
// path-component only, percent-decoded, stripped of scheme/host/query.
// net/http has already split query and decoded percent-escapes into
// r.URL.Path by the time a handler sees it, so this is a pure trim.
func documentKey(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

func (rt *Routes) handleDocumentUpgrade(w http.ResponseWriter, r *http.Request) error {
	if r.Header.Get("Upgrade") != "websocket" {
		http.NotFound(w, r)
		return nil
	}

	key := documentKey(r)
	if key == "" {
		return apperrors.NewBadRequestError("empty document key", nil)
	}

	b, err := rt.Registry.GetOrCreate(r.Context(), key, key)
	if err != nil {
		return err
	}

	conn, err := wsupgrade.Upgrade(w, r, nil)
	if err != nil {
		rt.Registry.Release(b)
		return apperrors.NewInternalError("websocket upgrade failed", err)
	}

	id := rt.IDs.Next()
	userSession := session.New(id, session.ToClient, conn)
	isFirst := b.SessionCount() == 0
	b.AddSession(userSession)
	userSession.SetEditLock(isFirst)

	go rt.runUserPipeline(b, userSession)
	return nil
}

// runUserPipeline waits for the matching worker-facing session to be
// published by InternalEndpoint's child-uri attach, then drives the
// bridged pipeline to completion and tears the session down.
func (rt *Routes) runUserPipeline(b *broker.DocumentBroker, u *session.UserSession) {
	defer func() {
		b.RemoveSession(u.ID())
		rt.Registry.Release(b)
		_ = u.Conn.Close()
	}()

	done := make(chan struct{})
	workerSession, ok := rt.WorkerSessions.Wait(u.ID(), done)
	if !ok {
		logger.Warnf("session %s: no worker attachment arrived before disconnect", u.ID())
		return
	}

	p := &session.Pipeline{
		User:          u,
		Worker:        workerSession,
		Terminate:     rt.Terminate,
		IsLastSession: func() bool { return b.SessionCount() <= 1 },
	}
	p.Run()
}

func (rt *Routes) handleConvertTo(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(rt.MaxDocumentSizeBytes); err != nil {
		return apperrors.NewBadRequestError("malformed multipart form", err)
	}
	format := r.FormValue("format")
	if format == "" {
		return apperrors.NewBadRequestError("format field is required", nil)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return apperrors.NewBadRequestError("file field is required", err)
	}
	defer file.Close()

	tempDir, err := os.MkdirTemp("", "loolbrokerd-convert-*")
	if err != nil {
		return apperrors.NewInternalError("create temp directory", err)
	}
	defer os.RemoveAll(tempDir)

	srcPath := filepath.Join(tempDir, filepath.Base(header.Filename))
	dst, err := os.Create(srcPath)
	if err != nil {
		return apperrors.NewInternalError("create temp file", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return apperrors.NewInternalError("write temp file", err)
	}
	dst.Close()

	// Derived key, not the document's real key: conversion must never
	// collide with a live editing session on the same document, per
	// spec.md §9's resolution of the conversion-path FIXME.
	key := "convert:" + srcPath
	b, err := rt.Registry.GetOrCreate(r.Context(), key, srcPath)
	if err != nil {
		return err
	}
	defer rt.Registry.Release(b)

	outPath := srcPath + "." + format
	if err := convertOnWorker(b.Worker.Stream, srcPath, outPath, format); err != nil {
		return err
	}

	attachCORS(w)
	w.Header().Set("Content-Type", "application/octet-stream")
	out, err := os.Open(outPath)
	if err != nil {
		return apperrors.NewNotFoundError("converted file not produced", err)
	}
	defer out.Close()
	_, err = io.Copy(w, out)
	return err
}

func (rt *Routes) handleInsertFile(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(rt.MaxDocumentSizeBytes); err != nil {
		return apperrors.NewBadRequestError("malformed multipart form", err)
	}
	childID := r.FormValue("childid")
	name := r.FormValue("name")
	if strings.Contains(childID, "/") || strings.Contains(name, "/") {
		return apperrors.NewBadRequestError("childid and name must not contain '/'", nil)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return apperrors.NewBadRequestError("file field is required", err)
	}
	defer file.Close()

	destDir := filepath.Join(rt.ChildRoot, childID, jailedDocumentRoot, "insertfile")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return apperrors.NewInternalError("create insertfile directory", err)
	}

	dst, err := os.Create(filepath.Join(destDir, name))
	if err != nil {
		return apperrors.NewInternalError("create destination file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return apperrors.NewInternalError("write destination file", err)
	}

	attachCORS(w)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (rt *Routes) handleDownload(w http.ResponseWriter, r *http.Request) error {
	jailID := chi.URLParam(r, "jailid")
	subdir := chi.URLParam(r, "subdir")
	file := chi.URLParam(r, "file")
	if strings.Contains(jailID, "..") || strings.Contains(subdir, "..") || strings.Contains(file, "..") {
		return apperrors.NewBadRequestError("path traversal rejected", nil)
	}

	dirPath := filepath.Join(rt.ChildRoot, jailID, jailedDocumentRoot, subdir)
	filePath := filepath.Join(dirPath, file)

	f, err := os.Open(filePath)
	if err != nil {
		return apperrors.NewNotFoundError("download path not found", err)
	}

	attachCORS(w)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, copyErr := io.Copy(w, f)
	f.Close()
	if copyErr != nil {
		return apperrors.NewInternalError("stream download", copyErr)
	}
	return os.RemoveAll(dirPath)
}
