package models

import "time"

// StandardResponse representa a estrutura padrão de todas as respostas da API operacional
// @Description Estrutura padrão de resposta
type StandardResponse struct {
	// Status da operação (success, error, warning)
	// @example "success"
	Status string `json:"status" example:"success"`

	// Mensagem descritiva da operação
	// @example "Sincronização concluída"
	Message string `json:"message" example:"Sincronização concluída"`

	// Dados retornados pela operação
	Data interface{} `json:"data,omitempty"`

	// Detalhes do erro (apenas quando status = error)
	Error *ErrorDetails `json:"error,omitempty"`

	// Metadados da resposta
	Meta *ResponseMeta `json:"meta"`
}

// ErrorDetails contém informações detalhadas sobre erros
type ErrorDetails struct {
	// @example "SYNC_IN_PROGRESS"
	Code string `json:"code" example:"SYNC_IN_PROGRESS"`

	// @example "Outra sincronização está em andamento"
	Message string `json:"message" example:"Outra sincronização está em andamento"`

	Details interface{} `json:"details,omitempty"`
}

// ResponseMeta contém metadados da resposta
type ResponseMeta struct {
	Timestamp     time.Time `json:"timestamp" example:"2025-08-25T17:25:30.468715-03:00"`
	ExecutionTime string    `json:"execution_time,omitempty" example:"1.234s"`
	RequestID     string    `json:"request_id,omitempty" example:"req_123456789"`
	Version       string    `json:"version,omitempty" example:"v1"`
}

// HealthResponse representa o estado do serviço e de suas dependências
type HealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version" example:"1.0.0"`
	Services  map[string]ServiceInfo `json:"services"`
	Uptime    string                 `json:"uptime" example:"2h30m45s"`
}

// ServiceInfo representa o estado de uma dependência
type ServiceInfo struct {
	Status string `json:"status" example:"healthy"`
	Error  string `json:"error,omitempty"`
}

// Constantes para status padronizados
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusWarning = "warning"
)

// Constantes para códigos de erro padronizados
const (
	ErrorCodeInternalError  = "INTERNAL_ERROR"
	ErrorCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	ErrorCodeUnauthorized   = "UNAUTHORIZED"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeSyncInProgress = "SYNC_IN_PROGRESS"
	ErrorCodeSyncFailed     = "SYNC_FAILED"
	ErrorCodeNoData         = "NO_DATA"
)

// NewSuccessResponse cria uma resposta de sucesso padronizada
func NewSuccessResponse(message string, data interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
		Meta:    newMeta(),
	}
}

// NewErrorResponse cria uma resposta de erro padronizada
func NewErrorResponse(code, message string, details interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  StatusError,
		Message: "Erro na operação",
		Error: &ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: newMeta(),
	}
}

// NewWarningResponse é usada quando a execução terminou com falha registrada no SyncRun
func NewWarningResponse(message string, data interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  StatusWarning,
		Message: message,
		Data:    data,
		Meta:    newMeta(),
	}
}

func newMeta() *ResponseMeta {
	return &ResponseMeta{
		Timestamp: time.Now(),
		Version:   "v1",
	}
}

// SetExecutionTime define o tempo de execução na resposta
func (r *StandardResponse) SetExecutionTime(duration time.Duration) {
	if r.Meta != nil {
		r.Meta.ExecutionTime = duration.String()
	}
}

// SetRequestID define o ID da requisição na resposta
func (r *StandardResponse) SetRequestID(requestID string) {
	if r.Meta != nil {
		r.Meta.RequestID = requestID
	}
}
