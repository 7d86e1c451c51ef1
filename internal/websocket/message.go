package websocket

import (
	"encoding/json"
	"time"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

// Tipos de mensagem enviadas aos clientes
const (
	TypeReport         = "report"
	TypeStatus         = "status"
	TypeGoal           = "goal"
	TypeGoalState      = "goal_state"
	TypeGoalPending    = "goal_pending"
	TypeCameraSelected = "camera_selected"
	TypeWelcome        = "welcome"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeError          = "error"
	TypeResult         = "command_result"
)

// NewMessage cria uma mensagem com o tipo e os dados informados
func NewMessage(kind string, data interface{}) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:      kind,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewReportMessage cria uma nova mensagem de relatório
func NewReportMessage(report models.TrackingReport) models.WebSocketMessage {
	return NewMessage(TypeReport, report)
}

// NewStatusMessage cria uma nova mensagem de status
func NewStatusMessage(status models.TrackerStatus) models.WebSocketMessage {
	return NewMessage(TypeStatus, status)
}

// NewErrorMessage cria uma nova mensagem de erro
func NewErrorMessage(message string, errorCode string) models.WebSocketMessage {
	return models.WebSocketMessage{
		Type:      TypeError,
		Timestamp: time.Now(),
		Error:     message,
		Data: map[string]string{
			"code": errorCode,
		},
	}
}

// SerializeMessage serializa uma mensagem para JSON
func SerializeMessage(message interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// ParseClientCommand analisa um comando recebido do cliente
func ParseClientCommand(data []byte) (models.CommandMessage, error) {
	var command models.CommandMessage
	err := json.Unmarshal(data, &command)
	return command, err
}

// DecodeParams converte os parâmetros genéricos de um comando para a struct out
func DecodeParams(params interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// CreatePongResponse cria uma resposta para um ping do cliente
func CreatePongResponse(pingTime int64) *models.PongMessage {
	return &models.PongMessage{
		WebSocketMessage: models.WebSocketMessage{
			Type:      TypePong,
			Timestamp: time.Now(),
		},
		Time:       pingTime,
		ServerTime: time.Now().UnixNano() / int64(time.Millisecond),
	}
}
