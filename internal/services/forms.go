package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/utils"
	"github.com/sirupsen/logrus"
)

// FormSource reads form responses dumped as JSON files into a directory.
// A dump is either an array of label→answer objects or a sheet export
// {"values": [[header...], [answer...]]}.
type FormSource struct {
	dir        string
	keepLatest bool
	logger     *logrus.Logger
}

// NewFormSource creates a source over cfg.ResponsesDir
func NewFormSource(cfg config.FormsConfig, logger *logrus.Logger) *FormSource {
	return &FormSource{dir: cfg.ResponsesDir, keepLatest: cfg.KeepLatest, logger: logger}
}

type sheetDump struct {
	Values [][]string `json:"values"`
}

// dumps lists the JSON files of the directory, oldest first
func (s *FormSource) dumps() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	mtimes := make(map[string]int64, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", f, err)
		}
		mtimes[f] = info.ModTime().UnixNano()
	}
	sort.SliceStable(files, func(i, j int) bool {
		if mtimes[files[i]] == mtimes[files[j]] {
			return files[i] < files[j]
		}
		return mtimes[files[i]] < mtimes[files[j]]
	})
	return files, nil
}

// Responses returns the responses of the newest dump, one per normalized
// CPF with the last answer winning. Responses without CPF are dropped.
func (s *FormSource) Responses(ctx context.Context) ([]models.FormResponse, error) {
	files, err := s.dumps()
	if err != nil {
		return nil, fmt.Errorf("failed to list form dumps: %w", err)
	}
	if len(files) == 0 {
		s.logger.WithField("dir", s.dir).Info("No form responses found")
		return nil, nil
	}
	latest := files[len(files)-1]

	raw, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", latest, err)
	}
	responses, err := DecodeResponses(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", latest, err)
	}

	unique := DedupByCPF(responses, s.logger)
	s.logger.WithFields(logrus.Fields{
		"file":      filepath.Base(latest),
		"responses": len(responses),
		"unique":    len(unique),
	}).Info("Form responses loaded")
	return unique, nil
}

// DecodeResponses accepts both dump layouts
func DecodeResponses(raw []byte) ([]models.FormResponse, error) {
	var list []models.FormResponse
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var sheet sheetDump
	if err := json.Unmarshal(raw, &sheet); err != nil {
		return nil, err
	}
	if len(sheet.Values) == 0 {
		return nil, nil
	}
	headers := sheet.Values[0]
	out := make([]models.FormResponse, 0, len(sheet.Values)-1)
	for _, row := range sheet.Values[1:] {
		r := make(models.FormResponse, len(headers))
		for i, h := range headers {
			if i < len(row) {
				r[h] = row[i]
			} else {
				r[h] = ""
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// DedupByCPF keeps the last response of every normalized CPF, in first-seen order
func DedupByCPF(responses []models.FormResponse, logger *logrus.Logger) []models.FormResponse {
	index := make(map[string]int)
	var out []models.FormResponse
	skipped, replaced := 0, 0

	for _, r := range responses {
		cpf := utils.CleanCPF(r.Get(models.FieldCPF))
		if cpf == "" {
			skipped++
			continue
		}
		if i, ok := index[cpf]; ok {
			out[i] = r
			replaced++
			continue
		}
		index[cpf] = len(out)
		out = append(out, r)
	}

	if replaced > 0 {
		logger.WithField("removed", replaced).Info("Duplicate CPFs removed, keeping the latest response")
	}
	if skipped > 0 {
		logger.WithField("skipped", skipped).Warn("Responses without CPF ignored")
	}
	return out
}

// Cleanup removes every dump except the newest
func (s *FormSource) Cleanup(ctx context.Context) error {
	if !s.keepLatest {
		return nil
	}
	files, err := s.dumps()
	if err != nil {
		return fmt.Errorf("failed to list form dumps: %w", err)
	}
	if len(files) <= 1 {
		return nil
	}
	for _, f := range files[:len(files)-1] {
		if err := os.Remove(f); err != nil {
			s.logger.WithError(err).WithField("file", f).Error("Failed to remove old form dump")
			continue
		}
		s.logger.WithField("file", filepath.Base(f)).Info("Old form dump removed")
	}
	return nil
}
