package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nicolagi/uploads/objects"
	log "github.com/sirupsen/logrus"
)

// Field of multipart upload forms carrying the file.
const uploadField = "file"

type errorBody struct {
	Err string `json:"err"`
}

type fileView struct {
	Meta    *objects.Metadata
	IsImage bool
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	all, err := s.objects.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	files := make([]fileView, 0, len(all))
	for _, meta := range all {
		files = append(files, fileView{Meta: meta, IsImage: meta.IsImage()})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, struct{ Files []fileView }{files}); err != nil {
		s.opts.logger.WithField("err", err).Error("Could not render index")
	}
}

// upload streams the file part of a multipart form into the store, without
// buffering it in memory or on disk.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Err: err.Error()})
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, errorBody{Err: err.Error()})
			return
		}
		if part.FormName() != uploadField {
			continue
		}
		meta, err := s.objects.Write(r.Context(), part.FileName(), part.Header.Get("Content-Type"), part)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.opts.logger.WithFields(log.Fields{
			"filename": meta.Filename,
			"original": meta.OriginalName,
			"length":   meta.Length,
		}).Info("Uploaded")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	writeJSON(w, r, http.StatusBadRequest, errorBody{Err: "No file uploaded"})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	all, err := s.objects.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(all) == 0 {
		writeJSON(w, r, http.StatusNotFound, errorBody{Err: "No files exist"})
		return
	}
	writeJSON(w, r, http.StatusOK, all)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	meta, err := s.objects.FindByFilename(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, meta)
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	stream, err := s.objects.OpenImage(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer stream.Close()
	// Fetch the first chunk before committing to a status code.
	if !stream.Next() && stream.Err() != nil {
		s.fail(w, r, stream.Err())
		return
	}
	meta := stream.Metadata()
	logger := s.opts.logger.WithField("filename", meta.Filename)
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Length, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(stream.Chunk()); err != nil {
		logger.WithField("err", err).Debug("Client went away")
		return
	}
	if _, err := io.Copy(w, stream); err != nil {
		// Too late for a status code. The short body tells the client.
		logger.WithField("err", err).Error("Image truncated")
	}
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	meta, err := s.objects.FindByFilename(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.objects.Delete(r.Context(), meta.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.opts.logger.WithField("filename", meta.Filename).Info("Deleted")
	w.WriteHeader(http.StatusOK)
}

// fail maps store errors to responses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.opts.logger.WithFields(log.Fields{
		"op":   r.Method,
		"path": r.URL.Path,
		"err":  err,
	})
	switch {
	case errors.Is(err, objects.ErrNotFound):
		logger.Debug("Not found")
		writeJSON(w, r, http.StatusNotFound, errorBody{Err: "No file exists"})
	case errors.Is(err, objects.ErrNotAnImage):
		logger.Debug("Not an image")
		writeJSON(w, r, http.StatusNotFound, errorBody{Err: "Not an image"})
	default:
		logger.Error()
		writeJSON(w, r, http.StatusInternalServerError, errorBody{Err: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(log.Fields{
			"path": r.URL.Path,
			"err":  err,
		}).Error("Failed writing response")
	}
}
