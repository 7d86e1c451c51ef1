package models

import "time"

// Vertex é um vértice de região em pixels da imagem original (distorcida)
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingPoly é a região de um objeto detectado
type BoundingPoly struct {
	Vertices []Vertex `json:"vertices"`
}

// ObjectAnnotation é um objeto detectado
type ObjectAnnotation struct {
	Label  string       `json:"label,omitempty"`
	Score  float64      `json:"score,omitempty"`
	Region BoundingPoly `json:"region"`
}

// ObjectAnnotations é a mensagem publicada pelo detector em <detector>.<id>.Detection
type ObjectAnnotations struct {
	Objects   []ObjectAnnotation `json:"objects"`
	FrameID   int64              `json:"frame_id,omitempty"`
	Timestamp time.Time          `json:"timestamp,omitempty"`
}

// ImageMessage é o frame publicado pelo gateway em CameraGateway.<id>.Frame
type ImageMessage struct {
	// Imagem codificada (JPEG/PNG), base64 no JSON
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Point3 é um ponto 3D no sistema de coordenadas do mundo
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FixState indica a qualidade da posição do alvo no tick
type FixState string

const (
	// FixOK posição calculada neste tick
	FixOK FixState = "fix"
	// FixStale posição de um tick anterior, ainda dentro do prazo
	FixStale FixState = "stale"
	// FixNone sem posição utilizável
	FixNone FixState = "no_fix"
)

// CameraOutcome resume o que cada câmera produziu no tick
type CameraOutcome struct {
	Camera  int     `json:"camera"`
	Status  string  `json:"status"` // "detected", "no_detection", "parse_error", "timeout", "invalid_ray", "no_calibration"
	Dropped int     `json:"dropped,omitempty"`
	Error   string  `json:"error,omitempty"`
	PixelX  float64 `json:"pixelX,omitempty"`
	PixelY  float64 `json:"pixelY,omitempty"`
}

// TrackingReport é o relatório publicado a cada tick
type TrackingReport struct {
	Sequence   uint64          `json:"sequence"`
	Timestamp  time.Time       `json:"timestamp"`
	State      FixState        `json:"state"`
	Goal       Point3          `json:"goal"`
	Target     *Point3         `json:"target,omitempty"`
	Offset     *Point3         `json:"offset,omitempty"`
	Distance   *float64        `json:"distance,omitempty"`
	BearingDeg *float64        `json:"bearingDeg,omitempty"`
	FixAge     time.Duration   `json:"fixAgeNs,omitempty"`
	Cameras    []int           `json:"cameras,omitempty"`
	Outcomes   []CameraOutcome `json:"outcomes"`
	// Erro de reprojeção (pixels) por câmera usada
	Reprojection map[int]float64 `json:"reprojection,omitempty"`
}

// HasFix indica se o relatório traz uma posição (atual ou antiga)
func (r *TrackingReport) HasFix() bool {
	return r.State != FixNone && r.Target != nil
}

// TrackerStatus representa o status atual do serviço de rastreamento
type TrackerStatus struct {
	Status         string    `json:"status"` // "waiting_goal", "running", "stopped"
	Timestamp      time.Time `json:"timestamp"`
	LastError      string    `json:"lastError,omitempty"`
	ErrorCount     int       `json:"errorCount,omitempty"`
	Cameras        []int     `json:"cameras"`
	DisplayCamera  int       `json:"displayCamera"`
	Ticks          uint64    `json:"ticks"`
	Fixes          uint64    `json:"fixes"`
	ConnectionInfo string    `json:"connectionInfo,omitempty"`
}

// GoalInfo descreve o ponto de referência calculado na inicialização
type GoalInfo struct {
	Ready   bool           `json:"ready"`
	Point   *Point3        `json:"point,omitempty"`
	Cameras []int          `json:"cameras,omitempty"`
	Clicks  map[int]Vertex `json:"clicks,omitempty"`
	States  map[int]string `json:"states,omitempty"`
}

// GoalStateEvent é emitido a cada transição da aquisição do goal
type GoalStateEvent struct {
	Camera    int       `json:"camera"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingPick descreve a câmera aguardando um clique do operador
type PendingPick struct {
	RequestID string `json:"requestId"`
	Camera    int    `json:"camera"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}
