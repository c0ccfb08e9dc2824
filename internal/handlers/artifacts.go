package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"streamvio/internal/database"
	"streamvio/internal/jobs"

	"github.com/gorilla/mux"
)

// GetThumbnail serves the thumbnail image, producing it on first request.
// GET /api/media/{id}/thumbnail?offset=12.5&width=320&height=180&regenerate=false
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	offset, err := queryFloat(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	width, err := queryInt(r, "width")
	if err != nil {
		writeError(w, r, err)
		return
	}
	height, err := queryInt(r, "height")
	if err != nil {
		writeError(w, r, err)
		return
	}
	regenerate, err := queryBool(r, "regenerate")
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.pipeline.GetOrCreateThumbnail(r.Context(), mux.Vars(r)["id"], userID(r),
		jobs.ThumbnailOptions{Offset: offset, Width: width, Height: height}, regenerate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.pipeline.ServeArtifactFile(w, r, a.FilePath); err != nil {
		writeError(w, r, err)
	}
}

// StoryboardFrame is a frame as exposed to players.
type StoryboardFrame struct {
	Offset float64 `json:"offset"`
	URL    string  `json:"url"`
}

// StoryboardResponse lists the frames of a storyboard.
type StoryboardResponse struct {
	ArtifactID int64             `json:"artifactId"`
	MediaID    string            `json:"mediaId"`
	SpriteURL  string            `json:"spriteUrl,omitempty"`
	Frames     []StoryboardFrame `json:"frames"`
}

// GetStoryboard returns evenly spaced preview frames, producing them first
// when needed.
// GET /api/media/{id}/storyboard?count=10&width=160&regenerate=false
func (h *Handlers) GetStoryboard(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count")
	if err != nil {
		writeError(w, r, err)
		return
	}
	width, err := queryInt(r, "width")
	if err != nil {
		writeError(w, r, err)
		return
	}
	regenerate, err := queryBool(r, "regenerate")
	if err != nil {
		writeError(w, r, err)
		return
	}

	mediaID := mux.Vars(r)["id"]
	a, err := h.pipeline.GetOrCreateStoryboard(r.Context(), mediaID, userID(r),
		jobs.StoryboardOptions{Count: count, Width: width}, regenerate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, storyboardResponse(mediaID, a))
}

func storyboardResponse(mediaID string, a *database.Artifact) StoryboardResponse {
	fileURL := func(path string) string {
		return fmt.Sprintf("/api/media/%s/storyboard/%d/%s", mediaID, a.ID, filepath.Base(path))
	}
	resp := StoryboardResponse{ArtifactID: a.ID, MediaID: mediaID, Frames: []StoryboardFrame{}}
	if a.Extra.SpritePath != "" {
		resp.SpriteURL = fileURL(a.Extra.SpritePath)
	}
	for _, f := range a.Extra.Frames {
		resp.Frames = append(resp.Frames, StoryboardFrame{Offset: f.Offset, URL: fileURL(f.Path)})
	}
	return resp
}

// GetStoryboardFile serves one frame or the sprite sheet of a storyboard.
func (h *Handlers) GetStoryboardFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	artifactID, err := strconv.ParseInt(vars["artifact"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid artifact id", http.StatusBadRequest)
		return
	}

	path, err := h.pipeline.StoryboardFile(r.Context(), vars["id"], userID(r), artifactID, vars["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.pipeline.ServeArtifactFile(w, r, path); err != nil {
		writeError(w, r, err)
	}
}

// ListArtifacts lists cataloged outputs for a media item.
// GET /api/media/{id}/artifacts?all=true includes superseded rows.
func (h *Handlers) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	all, err := queryBool(r, "all")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.pipeline.Artifacts(r.Context(), mux.Vars(r)["id"], userID(r), all)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*database.Artifact{}
	}
	writeJSONStatus(w, http.StatusOK, list)
}
