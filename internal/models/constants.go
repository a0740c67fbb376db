package models

const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	// DefaultMaxBookingHours предельная длительность одной брони
	DefaultMaxBookingHours = 6

	// DefaultZoneCacheTTL время жизни кэша списка зон в секундах
	DefaultZoneCacheTTL = 15

	// WorkerQueueSize размер очереди воркера синхронизации
	WorkerQueueSize = 1000

	// ClosureReasonPrefix префикс причины отмены при закрытии зоны
	ClosureReasonPrefix = "Zone closed: "
)
