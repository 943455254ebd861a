package portal

import (
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/AlterMundi/sai-cam-agent/internal/health"
)

func (s *Server) composeStatus() (StatusResponse, error) {
	snap, err := s.healthClient.Query(health.KindFull)
	if err != nil {
		return StatusResponse{}, err
	}

	resp := StatusResponse{
		Node: NodeInfo{ID: s.cfg.NodeID, Location: s.cfg.NodeLocation, Version: s.cfg.Version},
		Data: StatusData{
			System:  snap.System,
			Cameras: snap.Cameras,
			Storage: snap.Storage,
			WifiAP: WifiAPState{
				Supported: s.cfg.WifiAPSupported,
				Enabled:   s.cfg.WifiAPEnabled != nil && s.cfg.WifiAPEnabled(),
			},
		},
		Features: Features{
			Cameras: len(snap.Cameras) > 0,
			WifiAP:  s.cfg.WifiAPSupported,
			Storage: s.cfg.Storage != nil,
		},
	}

	if s.cfg.GetNetworkInfo != nil {
		resp.Data.Network = s.cfg.GetNetworkInfo()
	}
	if s.cfg.GetUpdateStatus != nil {
		if update, err := s.cfg.GetUpdateStatus(); err == nil {
			resp.Data.Update = update
		}
	}

	return resp, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.composeStatus()
	if err != nil {
		writeError(w, http.StatusBadGateway, "agent unreachable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	kind := health.Kind(r.URL.Query().Get("kind"))
	if kind == "" || !health.ValidKind(string(kind)) {
		kind = health.KindFull
	}
	snap, err := s.healthClient.Query(kind)
	if err != nil {
		writeError(w, http.StatusBadGateway, "agent unreachable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LogFilePath == "" {
		writeError(w, http.StatusNotFound, "no log file configured")
		return
	}
	n := queryInt(r, "lines", 200)
	lines, err := TailLastLines(s.cfg.LogFilePath, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read log: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, r *http.Request) {
	if s.cfg.GetLogLevel == nil {
		writeError(w, http.StatusNotImplemented, "log level control not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"level": s.cfg.GetLogLevel()})
}

var validLogLevels = map[string]bool{"WARNING": true, "INFO": true, "DEBUG": true}

func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	if s.cfg.SetLogLevel == nil {
		writeError(w, http.StatusNotImplemented, "log level control not configured")
		return
	}

	var body struct {
		Level string `json:"level"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !validLogLevels[body.Level] {
		writeError(w, http.StatusBadRequest, "level must be one of WARNING, INFO, DEBUG")
		return
	}
	if err := s.cfg.SetLogLevel(body.Level); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"level": body.Level})
}

func (s *Server) handleLatestImage(w http.ResponseWriter, r *http.Request) {
	cam := chi.URLParam(r, "cam")
	if s.cfg.Storage == nil {
		writeError(w, http.StatusNotFound, "storage not configured")
		return
	}

	img, err := s.cfg.Storage.LatestImage(cam)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up latest image: "+err.Error())
		return
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "no image captured yet for "+cam)
		return
	}

	f, err := os.Open(img.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "image file missing: "+err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	io.Copy(w, f)
}

func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	s.relayCommand(w, r, health.Command{Cmd: "capture", CameraID: chi.URLParam(r, "cam")})
}

func (s *Server) handleCameraRestart(w http.ResponseWriter, r *http.Request) {
	s.relayCommand(w, r, health.Command{Cmd: "restart", CameraID: chi.URLParam(r, "cam")})
}

func (s *Server) handleCameraPosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Position string `json:"position"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.relayCommand(w, r, health.Command{Cmd: "position", CameraID: chi.URLParam(r, "cam"), Value: body.Position})
}

func (s *Server) relayCommand(w http.ResponseWriter, r *http.Request, cmd health.Command) {
	result, err := s.healthClient.Command(cmd)
	if err != nil {
		writeError(w, http.StatusBadGateway, "agent unreachable: "+err.Error())
		return
	}
	if !result.OK {
		writeError(w, http.StatusBadRequest, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWifiAPEnable(w http.ResponseWriter, r *http.Request) {
	s.handleWifiAPToggle(w, s.cfg.WifiAPEnable)
}

func (s *Server) handleWifiAPDisable(w http.ResponseWriter, r *http.Request) {
	s.handleWifiAPToggle(w, s.cfg.WifiAPDisable)
}

func (s *Server) handleWifiAPToggle(w http.ResponseWriter, action func() error) {
	if !s.cfg.WifiAPSupported || action == nil {
		writeError(w, http.StatusNotImplemented, "wifi access point not supported on this node")
		return
	}
	if err := action(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.GetUpdateStatus == nil {
		writeError(w, http.StatusNotImplemented, "update controller not configured")
		return
	}
	state, err := s.cfg.GetUpdateStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TriggerUpdateCheck == nil {
		writeError(w, http.StatusNotImplemented, "update controller not configured")
		return
	}
	if err := s.cfg.TriggerUpdateCheck(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "check triggered"})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
