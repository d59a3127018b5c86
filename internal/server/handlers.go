package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hpckit/slurmbench/pkg/discovery"
	"github.com/hpckit/slurmbench/pkg/instance"
	"github.com/hpckit/slurmbench/pkg/manager"
	"github.com/hpckit/slurmbench/pkg/recipe"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type versionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type instancesResponse struct {
	Instances []*manager.Snapshot `json:"instances"`
	Total     int                 `json:"total"`
}

type recipesResponse struct {
	Recipes []string `json:"recipes"`
	Total   int      `json:"total"`
}

type discoveryResponse struct {
	Services []*discovery.Record `json:"services"`
	Total    int                 `json:"total"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: s.version})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{Name: "slurmbench", Version: s.version})
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	filter := instance.Status(r.URL.Query().Get("status"))

	snaps := s.manager.Snapshots()
	if filter != "" {
		filtered := snaps[:0]
		for _, snap := range snaps {
			if snap.Status == filter {
				filtered = append(filtered, snap)
			}
		}
		snaps = filtered
	}
	if snaps == nil {
		snaps = []*manager.Snapshot{}
	}
	writeJSON(w, http.StatusOK, instancesResponse{Instances: snaps, Total: len(snaps)})
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRecipes(w http.ResponseWriter, _ *http.Request) {
	names, err := s.manager.ListRecipes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, recipesResponse{Recipes: names, Total: len(names)})
}

func (s *Server) handleRecipe(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.RecipeInfo(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	resp := discoveryResponse{Services: []*discovery.Record{}}
	if s.discovery != nil {
		services, err := s.discovery.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
			return
		}
		for _, service := range services {
			rec, err := s.discovery.Read(service)
			if err != nil || rec == nil {
				continue
			}
			resp.Services = append(resp.Services, rec)
		}
	}
	resp.Total = len(resp.Services)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDiscoveryService(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if s.discovery == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "service not discoverable: "+service)
		return
	}
	rec, err := s.discovery.Read(service)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "service not discoverable: "+service)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
