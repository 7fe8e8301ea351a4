// Package server provides the HTTP server and routing for Mosaic.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mosaicquant/mosaic/internal/database"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	curatedDB   *database.DB
	martsDB     *database.DB
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, curatedDB, martsDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		curatedDB:   curatedDB,
		martsDB:     martsDB,
	}
}

// HandleHealth handles health check requests
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "mosaic",
	})
}

// HandleSystemStatus returns process and host status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	curatedOK := h.curatedDB.QuickCheck(r.Context()) == nil
	martsOK := h.martsDB.QuickCheck(r.Context()) == nil

	cpuPercent, ramPercent := h.getSystemStats()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"databases": map[string]bool{
			"curated": curatedOK,
			"marts":   martsOK,
		},
		"resources": map[string]float64{
			"cpu_percent": cpuPercent,
			"ram_percent": ramPercent,
		},
	})
}

// DBInfo describes one database file
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// HandleDatabaseStats returns database file statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	dbPaths := []struct {
		name string
		path string
	}{
		{"curated.db", filepath.Join(h.dataDir, "curated.db")},
		{"marts.db", filepath.Join(h.dataDir, "marts.db")},
	}

	for _, dbPath := range dbPaths {
		if info, err := os.Stat(dbPath.path); err == nil {
			sizeMB := float64(info.Size()) / 1024 / 1024
			totalSizeMB += sizeMB

			databases = append(databases, DBInfo{
				Name:   dbPath.name,
				Path:   dbPath.path,
				SizeMB: sizeMB,
			})
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":     databases,
		"total_size_mb": totalSizeMB,
	})
}

// HandleDiskUsage returns disk usage of the data directory
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	backupsSize := h.getDirSize(filepath.Join(h.dataDir, "backups"))

	h.writeJSON(w, http.StatusOK, map[string]float64{
		"data_dir_mb": dataDirSize,
		"backups_mb":  backupsSize,
		"total_mb":    dataDirSize + backupsSize,
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0
	}
	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Debug().Err(err).Msg("Failed to read CPU usage")
		cpuPercent = []float64{0}
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Debug().Err(err).Msg("Failed to read memory usage")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
