// Package calibration carrega os arquivos de calibração de cada câmera e
// mantém as matrizes de projeção usadas na triangulação.
package calibration

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// ErrInsufficientCameras indica que nenhuma calibração pôde ser carregada
var ErrInsufficientCameras = errors.New("insufficient cameras: no calibration loaded")

// ErrUnknownCamera indica uma câmera que não faz parte do store
var ErrUnknownCamera = errors.New("unknown camera")

// CalibrationLoadError informa por que uma câmera foi excluída
type CalibrationLoadError struct {
	CameraID int
	Path     string
	Err      error
}

func (e *CalibrationLoadError) Error() string {
	return fmt.Sprintf("camera %d (%s): %v", e.CameraID, e.Path, e.Err)
}

func (e *CalibrationLoadError) Unwrap() error { return e.Err }

// CameraCalibration não é alterada depois de construída
type CameraCalibration struct {
	ID int
	// K: intrínsecos originais (3x3)
	K *mat.Dense
	// Dist: k1, k2, p1, p2[, k3[, k4, k5, k6]]
	Dist []float64
	// NK: intrínsecos da imagem retificada (3x3)
	NK *mat.Dense
	// ROI: região válida da imagem retificada
	ROI image.Rectangle
	// RT: extrínsecos [R|t] (3x4)
	RT *mat.Dense

	p *mat.Dense
}

// P retorna a matriz de projeção nK·RT, calculada uma vez por calibração
func (c *CameraCalibration) P() *mat.Dense {
	return c.p
}

// bundle espelha o arquivo de calibração
type bundle struct {
	K    [][]float64 `json:"K"`
	Dist []float64   `json:"dist"`
	NK   [][]float64 `json:"nK"`
	ROI  []int       `json:"roi"`
	RT   [][]float64 `json:"rt"`
}

// NewCameraCalibration valida as dimensões e calcula P
func NewCameraCalibration(id int, k *mat.Dense, dist []float64, nk *mat.Dense, roi image.Rectangle, rt *mat.Dense) (*CameraCalibration, error) {
	if err := checkDims("K", k, 3, 3); err != nil {
		return nil, err
	}
	if err := checkDims("nK", nk, 3, 3); err != nil {
		return nil, err
	}
	if err := checkDims("rt", rt, 3, 4); err != nil {
		return nil, err
	}
	switch len(dist) {
	case 4, 5, 8:
	default:
		return nil, errors.Errorf("dist must have 4, 5 or 8 coefficients, got %d", len(dist))
	}
	if roi.Empty() {
		return nil, errors.Errorf("empty roi %v", roi)
	}
	if k.At(0, 0) == 0 || k.At(1, 1) == 0 {
		return nil, errors.New("K has zero focal length")
	}

	var p mat.Dense
	p.Mul(nk, rt)
	return &CameraCalibration{
		ID:   id,
		K:    k,
		Dist: append([]float64(nil), dist...),
		NK:   nk,
		ROI:  roi,
		RT:   rt,
		p:    &p,
	}, nil
}

func checkDims(name string, m *mat.Dense, r, c int) error {
	if m == nil {
		return errors.Errorf("missing %s", name)
	}
	if mr, mc := m.Dims(); mr != r || mc != c {
		return errors.Errorf("%s must be %dx%d, got %dx%d", name, r, c, mr, mc)
	}
	return nil
}

func denseFromRows(name string, rows [][]float64, r, c int) (*mat.Dense, error) {
	if rows == nil {
		return nil, errors.Errorf("missing %s", name)
	}
	if len(rows) != r {
		return nil, errors.Errorf("%s must have %d rows, got %d", name, r, len(rows))
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, errors.Errorf("%s row %d must have %d columns, got %d", name, i, c, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

// ReadFile lê um arquivo de calibração
func ReadFile(id int, path string) (*CameraCalibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	k, err := denseFromRows("K", b.K, 3, 3)
	if err != nil {
		return nil, err
	}
	nk, err := denseFromRows("nK", b.NK, 3, 3)
	if err != nil {
		return nil, err
	}
	// rt pode vir 4x4 homogênea; só as 3 primeiras linhas importam
	rtRows := b.RT
	if len(rtRows) == 4 {
		rtRows = rtRows[:3]
	}
	rt, err := denseFromRows("rt", rtRows, 3, 4)
	if err != nil {
		return nil, err
	}
	if b.Dist == nil {
		return nil, errors.New("missing dist")
	}
	if len(b.ROI) != 4 {
		return nil, errors.Errorf("roi must be [x, y, w, h], got %v", b.ROI)
	}
	roi := image.Rect(b.ROI[0], b.ROI[1], b.ROI[0]+b.ROI[2], b.ROI[1]+b.ROI[3])

	return NewCameraCalibration(id, k, b.Dist, nk, roi, rt)
}

// Store guarda as calibrações das câmeras carregadas com sucesso
type Store struct {
	dir     string
	pattern string

	mu      sync.RWMutex
	cameras map[int]*CameraCalibration
}

// NewStore cria um store a partir de calibrações já carregadas
func NewStore(cals ...*CameraCalibration) *Store {
	s := &Store{cameras: make(map[int]*CameraCalibration, len(cals))}
	for _, c := range cals {
		s.cameras[c.ID] = c
	}
	return s
}

// Load lê <dir>/<pattern % id> para cada id. Câmeras com falha são logadas,
// excluídas e listadas no erro retornado (um CalibrationLoadError cada), junto
// com um store utilizável. Se nada carregar, o store é nil e o erro contém
// ErrInsufficientCameras.
func Load(dir, pattern string, ids []int) (*Store, error) {
	s := &Store{
		dir:     dir,
		pattern: pattern,
		cameras: make(map[int]*CameraCalibration, len(ids)),
	}

	var errs error
	for _, id := range ids {
		path := s.path(id)
		cal, err := ReadFile(id, path)
		if err != nil {
			loadErr := &CalibrationLoadError{CameraID: id, Path: path, Err: err}
			logger.Warnf("Câmera %d excluída: %v", id, loadErr)
			errs = multierr.Append(errs, loadErr)
			continue
		}
		s.cameras[id] = cal
		logger.Infof("Calibração da câmera %d carregada (%s)", id, path)
	}

	if len(s.cameras) == 0 {
		return nil, multierr.Append(ErrInsufficientCameras, errs)
	}
	return s, errs
}

func (s *Store) path(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf(s.pattern, id))
}

// Get retorna a calibração de uma câmera
func (s *Store) Get(id int) (*CameraCalibration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cameras[id]
	return c, ok
}

// ProjectionMatrix retorna o P memorizado de uma câmera
func (s *Store) ProjectionMatrix(id int) (*mat.Dense, error) {
	c, ok := s.Get(id)
	if !ok {
		return nil, errors.Errorf("camera %d has no calibration", id)
	}
	return c.P(), nil
}

// CameraIDs retorna as câmeras carregadas em ordem crescente
func (s *Store) CameraIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.cameras))
	for id := range s.cameras {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len retorna o número de câmeras carregadas
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cameras)
}

// Reload relê o arquivo de uma câmera e substitui a calibração. Valores já
// derivados da anterior (como um goal calculado) não mudam. Em caso de falha
// a calibração anterior é mantida. Só câmeras já carregadas podem ser
// recarregadas: o conjunto consultado pelo rastreamento não muda.
func (s *Store) Reload(id int) error {
	if s.pattern == "" {
		return errors.Errorf("camera %d: store was not loaded from files", id)
	}
	if _, ok := s.Get(id); !ok {
		return errors.Wrapf(ErrUnknownCamera, "camera %d", id)
	}
	path := s.path(id)
	cal, err := ReadFile(id, path)
	if err != nil {
		return &CalibrationLoadError{CameraID: id, Path: path, Err: err}
	}

	s.mu.Lock()
	s.cameras[id] = cal
	s.mu.Unlock()

	logger.Infof("Calibração da câmera %d recarregada", id)
	return nil
}
